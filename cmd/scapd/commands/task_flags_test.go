package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/model"
)

func TestTaskFlagsUpdate(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	title := "weekly"
	repeat := 24
	notBefore := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		flags  taskFlags
		expUpd model.TaskUpdate
		expErr bool
	}{
		"Without flags nothing changes.": {
			flags:  taskFlags{title: "ignored"},
			expUpd: model.TaskUpdate{},
		},

		"Only the set flags change.": {
			flags:  taskFlags{title: "weekly", titleSet: true, repeatAfter: 24, repeatAfterSet: true, profile: "ignored"},
			expUpd: model.TaskUpdate{Title: &title, RepeatAfterHours: &repeat},
		},

		"A not before time should be parsed.": {
			flags:  taskFlags{notBefore: "2030-01-01T00:00", notBeforeSet: true},
			expUpd: model.TaskUpdate{NotBefore: &notBefore},
		},

		"A now not before should use the current time.": {
			flags:  taskFlags{notBefore: "now", notBeforeSet: true},
			expUpd: model.TaskUpdate{NotBefore: &now},
		},

		"An empty not before should stop the scheduling.": {
			flags:  taskFlags{notBefore: " ", notBeforeSet: true},
			expUpd: model.TaskUpdate{ClearNotBefore: true},
		},

		"A wrong not before should fail.": {
			flags:  taskFlags{notBefore: "tomorrow", notBeforeSet: true},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gotUpd, err := test.flags.update(now)

			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expUpd, gotUpd)
		})
	}
}
