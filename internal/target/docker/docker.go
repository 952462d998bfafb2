package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
}

// ListerConfig is the configuration for the docker target Lister.
type ListerConfig struct {
	Client DockerClient
	Logger log.Logger
}

func (c *ListerConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "target.Docker"})

	return nil
}

// Lister discovers the docker images and containers a bulk scan evaluates.
type Lister struct {
	client DockerClient
	logger log.Logger
}

// NewLister returns a new docker target Lister.
func NewLister(cfg ListerConfig) (*Lister, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Lister{
		client: cfg.Client,
		logger: cfg.Logger,
	}, nil
}

// ListTargets returns the target locators of the scope.
// List scope names are resolved as containers first and images otherwise.
func (l *Lister) ListTargets(ctx context.Context, scope model.BulkScanScope, names []string) ([]string, error) {
	switch scope {
	case model.BulkScanScopeActive:
		return l.containers(ctx, false)

	case model.BulkScanScopeAllContainers:
		return l.containers(ctx, true)

	case model.BulkScanScopeAllImages:
		images, err := l.client.ImageList(ctx, image.ListOptions{All: false})
		if err != nil {
			return nil, fmt.Errorf("could not list images: %w", err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("there are no images on this system: %w", model.ErrNotFound)
		}

		targets := make([]string, 0, len(images))
		for _, img := range images {
			targets = append(targets, imageTarget(strings.TrimPrefix(img.ID, "sha256:")))
		}
		sort.Strings(targets)
		return targets, nil

	case model.BulkScanScopeList:
		return l.resolve(ctx, names)
	}

	return nil, fmt.Errorf("unknown bulk scan scope %q: %w", scope, model.ErrNotValid)
}

func (l *Lister) containers(ctx context.Context, all bool) ([]string, error) {
	cs, err := l.client.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("could not list containers: %w", err)
	}
	if len(cs) == 0 {
		if all {
			return nil, fmt.Errorf("there are no containers on this system: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("there are no active containers on this system: %w", model.ErrNotFound)
	}

	targets := make([]string, 0, len(cs))
	for _, c := range cs {
		targets = append(targets, containerTarget(c.ID))
	}
	sort.Strings(targets)

	return targets, nil
}

func (l *Lister) resolve(ctx context.Context, names []string) ([]string, error) {
	cs, err := l.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("could not list containers: %w", err)
	}

	targets := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if id, ok := findContainer(cs, name); ok {
			targets = append(targets, containerTarget(id))
			continue
		}
		l.logger.Debugf("%q is not a container, scanning it as an image", name)
		targets = append(targets, imageTarget(name))
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets to scan: %w", model.ErrNotValid)
	}

	return targets, nil
}

func findContainer(cs []container.Summary, name string) (string, bool) {
	for _, c := range cs {
		if c.ID == name || (len(name) >= 12 && strings.HasPrefix(c.ID, name)) {
			return c.ID, true
		}
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return c.ID, true
			}
		}
	}

	return "", false
}

func containerTarget(id string) string {
	return string(model.TargetKindDockerContainer) + "://" + id
}

func imageTarget(id string) string {
	return string(model.TargetKindDockerImage) + "://" + id
}
