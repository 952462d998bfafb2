package feed

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/metrics"
	"github.com/slok/scapd/internal/model"
)

const (
	// DefaultBaseURL is the Red Hat OVAL feeds location.
	DefaultBaseURL = "https://www.redhat.com/security/data/oval/"
	// DefaultRecheckInterval is the minimum time between two freshness checks of the same feed.
	DefaultRecheckInterval = 10 * time.Minute

	// mtimeTolerance is how much older than the remote the local copy can be and still be fresh.
	mtimeTolerance = 2 * time.Second
	userAgent      = "scapd"
)

// DefaultDists are the RHEL major versions with a CVE feed.
var DefaultDists = []int{5, 6, 7}

// Feed is a remote CVE feed cached locally.
type Feed struct {
	ID string
	// RemoteName is the file name relative to the base URL, the extension selects the decompression.
	RemoteName string
	LocalName  string
	// CPEs are the platforms the feed has the vulnerabilities of.
	CPEs []string
}

// RedHatFeeds returns the RHEL OVAL feeds of the dists, newest dist first.
func RedHatFeeds(dists []int) []Feed {
	dists = append([]int{}, dists...)
	sort.Sort(sort.Reverse(sort.IntSlice(dists)))

	feeds := make([]Feed, 0, len(dists))
	for _, d := range dists {
		feeds = append(feeds, Feed{
			ID:         "RHEL" + strconv.Itoa(d),
			RemoteName: fmt.Sprintf("com.redhat.rhsa-RHEL%d.xml.bz2", d),
			LocalName:  fmt.Sprintf("com.redhat.rhsa-RHEL%d.xml", d),
			CPEs:       []string{fmt.Sprintf("cpe:/o:redhat:enterprise_linux:%d", d)},
		})
	}

	return feeds
}

// ManagerConfig is the configuration of the Manager.
type ManagerConfig struct {
	// Dir is where the feeds are cached.
	Dir     string
	BaseURL string
	Feeds   []Feed
	// DisableFetch makes the manager use the local copies without checking the remote.
	DisableFetch    bool
	RecheckInterval time.Duration
	HTTPClient      *http.Client
	TimeNow         func() time.Time
	Logger          log.Logger
	MetricsRecorder metrics.Recorder
}

func (c *ManagerConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("feeds directory is required")
	}

	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if c.Feeds == nil {
		c.Feeds = RedHatFeeds(DefaultDists)
	}

	if c.RecheckInterval == 0 {
		c.RecheckInterval = DefaultRecheckInterval
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "feed.Manager"})

	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}

	return nil
}

// Manager caches remote CVE feeds on disk and refreshes them when the remote changes.
// The local file mtime is the remote Last-Modified time of the cached version.
type Manager struct {
	cfg     ManagerConfig
	feeds   []Feed
	byID    map[string]Feed
	baseURL *url.URL
	logger  log.Logger

	// mu serializes the whole check and download, only one feed check runs at a time.
	mu          sync.Mutex
	lastChecked map[string]time.Time
}

// NewManager returns a new feed Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	baseURL, _ := url.Parse(cfg.BaseURL)
	byID := map[string]Feed{}
	for _, f := range cfg.Feeds {
		if f.ID == "" || f.RemoteName == "" || f.LocalName == "" {
			return nil, fmt.Errorf("invalid config: feed id, remote and local names are required: %w", model.ErrNotValid)
		}
		if _, ok := byID[f.ID]; ok {
			return nil, fmt.Errorf("invalid config: feed %q: %w", f.ID, model.ErrAlreadyExists)
		}
		byID[f.ID] = f
	}

	return &Manager{
		cfg:         cfg,
		feeds:       cfg.Feeds,
		byID:        byID,
		baseURL:     baseURL,
		logger:      cfg.Logger,
		lastChecked: map[string]time.Time{},
	}, nil
}

// Feeds returns the managed feeds.
func (m *Manager) Feeds() []Feed {
	return append([]Feed{}, m.feeds...)
}

// Get returns the local path of a fresh copy of the feed.
func (m *Manager) Get(ctx context.Context, id string) (string, error) {
	f, ok := m.byID[id]
	if !ok {
		return "", fmt.Errorf("feed %q: %w", id, model.ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.get(ctx, f)
}

// GetForCPEs returns the local path of the first feed matching any of the CPE IDs.
func (m *Manager) GetForCPEs(ctx context.Context, cpeIDs []string) (string, error) {
	f, err := m.feedForCPEs(cpeIDs)
	if err != nil {
		return "", err
	}

	return m.Get(ctx, f.ID)
}

// LastUpdated returns the remote modification time of the cached feed matching the CPE IDs.
func (m *Manager) LastUpdated(ctx context.Context, cpeIDs []string) (time.Time, error) {
	path, err := m.GetForCPEs(ctx, cpeIDs)
	if err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("feed not cached at %q: %w", path, model.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("could not stat feed: %w", err)
	}

	return info.ModTime().UTC(), nil
}

// FetchAll refreshes every feed and returns their local paths.
func (m *Manager) FetchAll(ctx context.Context) ([]string, error) {
	paths := []string{}
	var errs []error
	for _, f := range m.feeds {
		p, err := m.Get(ctx, f.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %q: %w", f.ID, err))
			continue
		}
		paths = append(paths, p)
	}

	return paths, errors.Join(errs...)
}

func (m *Manager) feedForCPEs(cpeIDs []string) (Feed, error) {
	for _, f := range m.feeds {
		for _, cpe := range f.CPEs {
			for _, id := range cpeIDs {
				if id == cpe {
					return f, nil
				}
			}
		}
	}

	return Feed{}, fmt.Errorf("can't find a supported CPE ID in %q: %w", strings.Join(cpeIDs, ", "), model.ErrNotFound)
}

func (m *Manager) get(ctx context.Context, f Feed) (string, error) {
	localPath := filepath.Join(m.cfg.Dir, f.LocalName)
	logger := m.logger.WithCtxValues(ctx).WithValues(log.Kv{"feed": f.ID})

	if m.cfg.DisableFetch {
		m.cfg.MetricsRecorder.FeedChecked(ctx, f.ID, metrics.FeedOutcomeDisabled)
		return localPath, nil
	}

	remoteURL := m.baseURL.ResolveReference(&url.URL{Path: f.RemoteName}).String()

	info, err := os.Stat(localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debugf("No local copy cached, fetching %q", remoteURL)
	case err != nil:
		return "", fmt.Errorf("could not stat local feed: %w", err)
	default:
		fresh, err := m.isFresh(ctx, logger, remoteURL, info.ModTime())
		if err != nil {
			logger.Warningf("Could not check %q for a fresh version, using the local copy: %v", remoteURL, err)
			m.cfg.MetricsRecorder.FeedChecked(ctx, f.ID, metrics.FeedOutcomeCheckError)
			return localPath, nil
		}
		if fresh {
			m.cfg.MetricsRecorder.FeedChecked(ctx, f.ID, metrics.FeedOutcomeFresh)
			return localPath, nil
		}
		logger.Infof("Local copy of %q is not new enough", remoteURL)
	}

	if err := m.download(ctx, logger, f, remoteURL, localPath); err != nil {
		m.cfg.MetricsRecorder.FeedChecked(ctx, f.ID, metrics.FeedOutcomeError)
		return "", fmt.Errorf("unable to fetch CVE feed: %w", err)
	}
	m.cfg.MetricsRecorder.FeedChecked(ctx, f.ID, metrics.FeedOutcomeDownloaded)

	return localPath, nil
}

// isFresh returns true if the local copy is the same version as the remote one.
func (m *Manager) isFresh(ctx context.Context, logger log.Logger, remoteURL string, localMtime time.Time) (bool, error) {
	now := m.cfg.TimeNow()
	if last, ok := m.lastChecked[remoteURL]; ok && now.Sub(last) < m.cfg.RecheckInterval {
		logger.Debugf("Checked %q %s ago, not checking again until %s", remoteURL, now.Sub(last), m.cfg.RecheckInterval)
		return true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, remoteURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("unexpected HEAD status: %s", resp.Status)
	}

	remoteTime, err := lastModified(resp.Header)
	if err != nil {
		logger.Warningf("Response of %q doesn't have a valid Last-Modified header, can't determine the remote version: %v", remoteURL, err)
		return false, nil
	}
	m.lastChecked[remoteURL] = now

	if remoteTime.Sub(localMtime) > mtimeTolerance {
		return false, nil
	}

	logger.Debugf("Local copy is the same as %q", remoteURL)
	return true, nil
}

func (m *Manager) download(ctx context.Context, logger log.Logger, f Feed, remoteURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected GET status: %s", resp.Status)
	}

	body, err := decompressor(f.RemoteName, resp.Body)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("could not create feeds directory: %w", err)
	}
	tmp, err := os.CreateTemp(m.cfg.Dir, "."+f.LocalName+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write feed: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return fmt.Errorf("could not replace feed: %w", err)
	}

	now := m.cfg.TimeNow()
	remoteTime, err := lastModified(resp.Header)
	if err != nil {
		logger.Warningf("Response of %q doesn't have a valid Last-Modified header, can't determine the remote version: %v", remoteURL, err)
	} else if err := os.Chtimes(localPath, remoteTime, remoteTime); err != nil {
		return fmt.Errorf("could not set feed modification time: %w", err)
	}
	m.lastChecked[remoteURL] = now
	logger.Infof("Fetched %q into %q", remoteURL, localPath)

	return nil
}

func lastModified(h http.Header) (time.Time, error) {
	v := h.Get("Last-Modified")
	if v == "" {
		return time.Time{}, fmt.Errorf("missing Last-Modified header")
	}

	return http.ParseTime(v)
}

func decompressor(name string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		return bzip2.NewReader(r), nil
	case strings.HasSuffix(name, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not decompress gzip feed: %w", err)
		}
		return gr, nil
	}

	return r, nil
}
