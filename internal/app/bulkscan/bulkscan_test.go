package bulkscan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/app/bulkscan"
	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/model"
)

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) BulkScanAsync(ctx context.Context, req model.BulkScanRequest) (async.Token, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(async.Token), args.Error(1)
}

func (m *mockScanner) BulkScanResult(token async.Token) (*model.BulkScanReport, error) {
	args := m.Called(token)
	r, _ := args.Get(0).(*model.BulkScanReport)
	return r, args.Error(1)
}

func (m *mockScanner) CancelAction(token async.Token) error {
	return m.Called(token).Error(0)
}

func TestServiceRun(t *testing.T) {
	req := model.BulkScanRequest{Scope: model.BulkScanScopeActive, CPEIDs: []string{"cpe:/o:redhat:enterprise_linux:7"}}
	report := &model.BulkScanReport{
		ID:    "01HQ",
		Scope: model.BulkScanScopeActive,
		Results: []model.BulkScanTargetResult{
			{Target: "docker-container://abc", ExitCode: 0},
			{Target: "docker-container://def", ExitCode: 1, Error: "boom"},
		},
	}

	tests := map[string]struct {
		mock      func(m *mockScanner)
		timeout   time.Duration
		expReport *model.BulkScanReport
		expErr    error
	}{
		"A finished scan should return the report with the failed targets.": {
			mock: func(m *mockScanner) {
				m.On("BulkScanAsync", mock.Anything, req).Once().Return(async.Token(1), nil)
				m.On("BulkScanResult", async.Token(1)).Once().Return(nil, model.ErrResultsNotAvailable)
				m.On("BulkScanResult", async.Token(1)).Once().Return(report, nil)
			},
			expReport: report,
		},

		"A scan without targets should fail.": {
			mock: func(m *mockScanner) {
				m.On("BulkScanAsync", mock.Anything, req).Once().Return(async.Token(1), nil)
				m.On("BulkScanResult", async.Token(1)).Once().Return(nil, model.ErrNotFound)
			},
			expErr: model.ErrNotFound,
		},

		"A cancelled context should cancel the scan.": {
			mock: func(m *mockScanner) {
				m.On("BulkScanAsync", mock.Anything, req).Once().Return(async.Token(1), nil)
				m.On("BulkScanResult", async.Token(1)).Return(nil, model.ErrResultsNotAvailable)
				m.On("CancelAction", async.Token(1)).Once().Return(nil)
			},
			timeout: 20 * time.Millisecond,
			expErr:  context.DeadlineExceeded,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &mockScanner{}
			test.mock(m)

			svc, err := bulkscan.NewService(bulkscan.ServiceConfig{Scanner: m, PollInterval: time.Millisecond})
			require.NoError(t, err)

			ctx := context.Background()
			if test.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, test.timeout)
				defer cancel()
			}

			got, err := svc.Run(ctx, req)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expReport, got)
			}
			m.AssertExpectations(t)
		})
	}
}
