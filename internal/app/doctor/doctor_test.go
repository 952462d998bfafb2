package doctor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/app/doctor"
	"github.com/slok/scapd/internal/config"
	"github.com/slok/scapd/internal/feed"
	"github.com/slok/scapd/internal/model"
)

type fakeFeeds struct {
	updated map[string]time.Time
}

func (f fakeFeeds) Feeds() []feed.Feed { return feed.RedHatFeeds([]int{7, 6}) }

func (f fakeFeeds) LastUpdated(ctx context.Context, cpeIDs []string) (time.Time, error) {
	t, ok := f.updated[cpeIDs[0]]
	if !ok {
		return time.Time{}, model.ErrNotFound
	}
	return t, nil
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config doctor.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: doctor.ServiceConfig{DataDir: "/tmp", FeedInspector: fakeFeeds{}},
		},
		"missing data dir should fail": {
			config: doctor.ServiceConfig{FeedInspector: fakeFeeds{}},
			expErr: true,
		},
		"missing feed inspector should fail": {
			config: doctor.ServiceConfig{DataDir: "/tmp"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := doctor.NewService(test.config)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	ssgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ssgDir, "ssg-fedora-ds.xml"), []byte("<ds/>"), 0o644))

	tests := map[string]struct {
		config    func() config.Config
		feeds     fakeFeeds
		expStatus map[string]model.CheckStatus
		expErrors bool
	}{
		"A fully configured host should pass.": {
			config: func() config.Config {
				c := config.Default()
				c.Tools = config.ToolsConfig{OSCAP: "/usr/bin/oscap", OSCAPSSH: "/usr/bin/oscap-ssh", OSCAPDocker: "/usr/bin/oscap-docker", OSCAPVM: "/usr/bin/oscap-vm", OSCAPChroot: "/usr/bin/oscap-chroot"}
				c.SSGDir = ssgDir
				c.StandardScanInput = "/usr/share/xml/scap/ssg/content/ssg-fedora-ds.xml"
				return c
			},
			feeds: fakeFeeds{updated: map[string]time.Time{
				"cpe:/o:redhat:enterprise_linux:7": now.Add(-48 * time.Hour),
				"cpe:/o:redhat:enterprise_linux:6": now.Add(-48 * time.Hour),
			}},
			expStatus: map[string]model.CheckStatus{
				"oscap":               model.CheckStatusOK,
				"oscap-ssh":           model.CheckStatusOK,
				"oscap-docker":        model.CheckStatusOK,
				"oscap-vm":            model.CheckStatusOK,
				"oscap-chroot":        model.CheckStatusOK,
				"ssg-content":         model.CheckStatusOK,
				"standard-scan-input": model.CheckStatusOK,
				"data-dir":            model.CheckStatusOK,
				"feed-RHEL7":          model.CheckStatusOK,
				"feed-RHEL6":          model.CheckStatusOK,
			},
		},

		"A host without oscap should fail.": {
			config: func() config.Config {
				c := config.Default()
				c.Feeds.FetchEnabled = false
				return c
			},
			expStatus: map[string]model.CheckStatus{
				"oscap":               model.CheckStatusError,
				"oscap-ssh":           model.CheckStatusWarning,
				"oscap-docker":        model.CheckStatusWarning,
				"oscap-vm":            model.CheckStatusWarning,
				"oscap-chroot":        model.CheckStatusWarning,
				"ssg-content":         model.CheckStatusWarning,
				"standard-scan-input": model.CheckStatusWarning,
				"data-dir":            model.CheckStatusOK,
				"feed-RHEL7":          model.CheckStatusWarning,
				"feed-RHEL6":          model.CheckStatusWarning,
			},
			expErrors: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := doctor.NewService(doctor.ServiceConfig{
				Config:        test.config(),
				DataDir:       filepath.Join(t.TempDir(), "data"),
				FeedInspector: test.feeds,
				Exists:        func(path string) bool { return true },
				TimeNow:       func() time.Time { return now },
			})
			require.NoError(t, err)

			results := svc.Run(context.Background())
			got := map[string]model.CheckStatus{}
			for _, r := range results {
				got[r.ID] = r.Status
			}
			assert.Equal(t, test.expStatus, got)
			assert.Equal(t, test.expErrors, model.HasErrors(results))
		})
	}
}
