package resultlist_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/app/resultlist"
	"github.com/slok/scapd/internal/model"
)

type mockResults struct {
	mock.Mock
}

func (m *mockResults) ListTaskResultIDs(ctx context.Context, taskID int) ([]int, error) {
	args := m.Called(ctx, taskID)
	ids, _ := args.Get(0).([]int)
	return ids, args.Error(1)
}

func (m *mockResults) GetTaskResult(ctx context.Context, taskID, resultID int) (*model.Result, error) {
	args := m.Called(ctx, taskID, resultID)
	r, _ := args.Get(0).(*model.Result)
	return r, args.Error(1)
}

func TestNewService(t *testing.T) {
	_, err := resultlist.NewService(resultlist.ServiceConfig{})
	assert.Error(t, err)
}

func TestServiceRun(t *testing.T) {
	result := func(id, code int) *model.Result { return &model.Result{TaskID: 1, ID: id, ExitCode: code} }

	tests := map[string]struct {
		mock       func(m *mockResults)
		req        resultlist.Request
		expResults []model.Result
		expErr     bool
	}{
		"Listing should return every result newest first.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return([]int{3, 2, 1}, nil)
				m.On("GetTaskResult", mock.Anything, 1, 3).Once().Return(result(3, 2), nil)
				m.On("GetTaskResult", mock.Anything, 1, 2).Once().Return(result(2, 0), nil)
				m.On("GetTaskResult", mock.Anything, 1, 1).Once().Return(result(1, 1), nil)
			},
			req:        resultlist.Request{TaskID: 1},
			expResults: []model.Result{*result(3, 2), *result(2, 0), *result(1, 1)},
		},

		"Listing only failed should drop the compliant ones.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return([]int{2, 1}, nil)
				m.On("GetTaskResult", mock.Anything, 1, 2).Once().Return(result(2, 0), nil)
				m.On("GetTaskResult", mock.Anything, 1, 1).Once().Return(result(1, 2), nil)
			},
			req:        resultlist.Request{TaskID: 1, OnlyFailed: true},
			expResults: []model.Result{*result(1, 2)},
		},

		"Listing with a limit should stop early.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return([]int{2, 1}, nil)
				m.On("GetTaskResult", mock.Anything, 1, 2).Once().Return(result(2, 0), nil)
			},
			req:        resultlist.Request{TaskID: 1, Limit: 1},
			expResults: []model.Result{*result(2, 0)},
		},

		"Results removed while listing should be skipped.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return([]int{2, 1}, nil)
				m.On("GetTaskResult", mock.Anything, 1, 2).Once().Return(nil, model.ErrNotFound)
				m.On("GetTaskResult", mock.Anything, 1, 1).Once().Return(result(1, 0), nil)
			},
			req:        resultlist.Request{TaskID: 1},
			expResults: []model.Result{*result(1, 0)},
		},

		"A missing task should fail.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return(nil, model.ErrNotFound)
			},
			req:    resultlist.Request{TaskID: 1},
			expErr: true,
		},

		"A result read error should fail.": {
			mock: func(m *mockResults) {
				m.On("ListTaskResultIDs", mock.Anything, 1).Once().Return([]int{1}, nil)
				m.On("GetTaskResult", mock.Anything, 1, 1).Once().Return(nil, errors.New("whatever"))
			},
			req:    resultlist.Request{TaskID: 1},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := &mockResults{}
			test.mock(m)

			svc, err := resultlist.NewService(resultlist.ServiceConfig{Results: m})
			require.NoError(err)

			got, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResults, got)
			}
			m.AssertExpectations(t)
		})
	}
}
