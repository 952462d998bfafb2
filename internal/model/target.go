package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetKind is the kind of machine or container a spec is evaluated on.
type TargetKind string

const (
	TargetKindLocalhost       TargetKind = "localhost"
	TargetKindSSH             TargetKind = "ssh"
	TargetKindDockerImage     TargetKind = "docker-image"
	TargetKindDockerContainer TargetKind = "docker-container"
	TargetKindVMDomain        TargetKind = "vm-domain"
	TargetKindVMImage         TargetKind = "vm-image"
	TargetKindChroot          TargetKind = "chroot"
)

// DefaultTarget is the target used when none is set.
const DefaultTarget = "localhost"

const defaultSSHPort = 22

var targetSchemes = []TargetKind{
	TargetKindSSH,
	TargetKindDockerImage,
	TargetKindDockerContainer,
	TargetKindVMDomain,
	TargetKindVMImage,
	TargetKindChroot,
}

// Target is a parsed evaluation target locator (e.g. `ssh://host:2222`, `docker-image://fedora`).
type Target struct {
	Kind TargetKind
	// Name is the host, image, container, domain or path depending on the kind.
	Name string
	// Port is only used by SSH targets.
	Port int
}

// ParseTarget parses a target locator.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("target is required: %w", ErrNotValid)
	}

	if s == string(TargetKindLocalhost) {
		return Target{Kind: TargetKindLocalhost}, nil
	}

	for _, kind := range targetSchemes {
		prefix := string(kind) + "://"
		if !strings.HasPrefix(s, prefix) {
			continue
		}

		name := strings.TrimPrefix(s, prefix)
		if name == "" {
			return Target{}, fmt.Errorf("target %q is missing the %s name: %w", s, kind, ErrNotValid)
		}

		if kind != TargetKindSSH {
			return Target{Kind: kind, Name: name}, nil
		}

		host, portStr, hasPort := strings.Cut(name, ":")
		if !hasPort {
			return Target{Kind: kind, Name: host, Port: defaultSSHPort}, nil
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, fmt.Errorf("target %q has an invalid port: %w", s, ErrNotValid)
		}
		if host == "" {
			return Target{}, fmt.Errorf("target %q is missing the host: %w", s, ErrNotValid)
		}

		return Target{Kind: kind, Name: host, Port: port}, nil
	}

	return Target{}, fmt.Errorf("unrecognized target %q: %w", s, ErrNotValid)
}

// String returns the canonical locator, two targets with the same string are the same machine.
func (t Target) String() string {
	switch t.Kind {
	case TargetKindLocalhost:
		return string(TargetKindLocalhost)
	case TargetKindSSH:
		return fmt.Sprintf("%s://%s:%d", t.Kind, t.Name, t.Port)
	default:
		return fmt.Sprintf("%s://%s", t.Kind, t.Name)
	}
}
