package feed_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/feed"
	"github.com/slok/scapd/internal/model"
)

const feedContents = "<oval_definitions/>\n"

// bz2 compressed feedContents.
var feedBZ2, _ = base64.StdEncoding.DecodeString("QlpoOTFBWSZTWZ+tGTgAAAFbgAAQAACABQAApyWNACAAIo2iDBqFMABNBSCDzzwbqzoqg+LuSKcKEhP1oycA")

// fakeRemote serves the RHEL7 feed with a configurable Last-Modified and counts requests.
type fakeRemote struct {
	mu           sync.Mutex
	lastModified time.Time
	noHeader     bool
	fail         bool
	heads        int
	gets         int
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if r.URL.Path != "/oval/com.redhat.rhsa-RHEL7.xml.bz2" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !f.noHeader {
		w.Header().Set("Last-Modified", f.lastModified.UTC().Format(http.TimeFormat))
	}

	switch r.Method {
	case http.MethodHead:
		f.heads++
	case http.MethodGet:
		f.gets++
		_, _ = w.Write(feedBZ2)
	}
}

func (f *fakeRemote) counts() (heads, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads, f.gets
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T, remote *fakeRemote, c *clock, disable bool) (*feed.Manager, string) {
	t.Helper()

	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	m, err := feed.NewManager(feed.ManagerConfig{
		Dir:          dir,
		BaseURL:      srv.URL + "/oval",
		Feeds:        feed.RedHatFeeds([]int{6, 7}),
		DisableFetch: disable,
		HTTPClient:   srv.Client(),
		TimeNow:      c.Now,
	})
	require.NoError(t, err)

	return m, dir
}

func TestManagerGetDownloadsAndSetsMtime(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	remoteTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	remote := &fakeRemote{lastModified: remoteTime}
	c := &clock{now: time.Now()}
	m, dir := newManager(t, remote, c, false)

	path, err := m.GetForCPEs(context.Background(), []string{"cpe:/o:redhat:enterprise_linux:7"})
	require.NoError(err)
	assert.Equal(filepath.Join(dir, "com.redhat.rhsa-RHEL7.xml"), path)

	got, err := os.ReadFile(path)
	require.NoError(err)
	assert.Equal(feedContents, string(got))

	info, err := os.Stat(path)
	require.NoError(err)
	assert.True(remoteTime.Equal(info.ModTime()), "mtime should be the remote Last-Modified, got %s", info.ModTime())

	last, err := m.LastUpdated(context.Background(), []string{"cpe:/o:redhat:enterprise_linux:7"})
	require.NoError(err)
	assert.True(remoteTime.Equal(last))
}

func TestManagerGetFreshness(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	remoteTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	remote := &fakeRemote{lastModified: remoteTime}
	c := &clock{now: time.Now()}
	m, _ := newManager(t, remote, c, false)

	_, err := m.Get(ctx, "RHEL7")
	require.NoError(err)
	heads, gets := remote.counts()
	assert.Equal(0, heads)
	assert.Equal(1, gets)

	// Within the recheck interval nothing is requested.
	c.Add(5 * time.Minute)
	_, err = m.Get(ctx, "RHEL7")
	require.NoError(err)
	heads, gets = remote.counts()
	assert.Equal(0, heads)
	assert.Equal(1, gets)

	// After the interval, same remote version only needs a HEAD.
	c.Add(10 * time.Minute)
	_, err = m.Get(ctx, "RHEL7")
	require.NoError(err)
	heads, gets = remote.counts()
	assert.Equal(1, heads)
	assert.Equal(1, gets)

	// A remote version inside the tolerance is still the same version.
	remote.set(func(f *fakeRemote) { f.lastModified = remoteTime.Add(2 * time.Second) })
	c.Add(11 * time.Minute)
	_, err = m.Get(ctx, "RHEL7")
	require.NoError(err)
	heads, gets = remote.counts()
	assert.Equal(2, heads)
	assert.Equal(1, gets)

	// A newer remote version is downloaded.
	newRemoteTime := remoteTime.Add(time.Hour)
	remote.set(func(f *fakeRemote) { f.lastModified = newRemoteTime })
	c.Add(11 * time.Minute)
	path, err := m.Get(ctx, "RHEL7")
	require.NoError(err)
	heads, gets = remote.counts()
	assert.Equal(3, heads)
	assert.Equal(2, gets)

	info, err := os.Stat(path)
	require.NoError(err)
	assert.True(newRemoteTime.Equal(info.ModTime()))
}

func TestManagerGetKeepsLocalCopyOnCheckFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	remote := &fakeRemote{lastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := &clock{now: time.Now()}
	m, _ := newManager(t, remote, c, false)

	path, err := m.Get(ctx, "RHEL7")
	require.NoError(err)

	remote.set(func(f *fakeRemote) { f.fail = true })
	c.Add(time.Hour)
	gotPath, err := m.Get(ctx, "RHEL7")
	require.NoError(err)
	require.Equal(path, gotPath)
	require.FileExists(gotPath)
}

func TestManagerGetWithoutLastModifiedDownloadsAgain(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	remote := &fakeRemote{noHeader: true}
	c := &clock{now: time.Now()}
	m, _ := newManager(t, remote, c, false)

	_, err := m.Get(ctx, "RHEL7")
	require.NoError(err)
	c.Add(time.Hour)
	_, err = m.Get(ctx, "RHEL7")
	require.NoError(err)

	_, gets := remote.counts()
	require.Equal(2, gets)
}

func TestManagerGetMissingLocalWithFailingRemote(t *testing.T) {
	remote := &fakeRemote{fail: true}
	c := &clock{now: time.Now()}
	m, _ := newManager(t, remote, c, false)

	_, err := m.Get(context.Background(), "RHEL6")
	assert.Error(t, err)
}

func TestManagerFetchDisabled(t *testing.T) {
	require := require.New(t)

	remote := &fakeRemote{}
	c := &clock{now: time.Now()}
	m, dir := newManager(t, remote, c, true)

	path, err := m.Get(context.Background(), "RHEL7")
	require.NoError(err)
	require.Equal(filepath.Join(dir, "com.redhat.rhsa-RHEL7.xml"), path)

	heads, gets := remote.counts()
	require.Zero(heads + gets)
}

func TestManagerUnknownFeeds(t *testing.T) {
	assert := assert.New(t)

	c := &clock{now: time.Now()}
	m, _ := newManager(t, &fakeRemote{}, c, false)

	_, err := m.Get(context.Background(), "RHEL9")
	assert.ErrorIs(err, model.ErrNotFound)

	_, err = m.GetForCPEs(context.Background(), []string{"cpe:/o:fedoraproject:fedora:40"})
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestRedHatFeeds(t *testing.T) {
	got := feed.RedHatFeeds([]int{5, 7, 6})

	require.Len(t, got, 3)
	assert.Equal(t, feed.Feed{
		ID:         "RHEL7",
		RemoteName: "com.redhat.rhsa-RHEL7.xml.bz2",
		LocalName:  "com.redhat.rhsa-RHEL7.xml",
		CPEs:       []string{"cpe:/o:redhat:enterprise_linux:7"},
	}, got[0])
	assert.Equal(t, "RHEL6", got[1].ID)
	assert.Equal(t, "RHEL5", got[2].ID)
}
