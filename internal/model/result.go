package model

import (
	"fmt"
	"time"
)

const (
	// ExitCodeCompliant is the tool exit code for a compliant target.
	ExitCodeCompliant = 0
	// ExitCodeError is the tool exit code for a failed evaluation (also used when the tool can't start).
	ExitCodeError = 1
	// ExitCodeNonCompliant is the tool exit code for a non-compliant target.
	ExitCodeNonCompliant = 2
)

// Result is a stored task evaluation.
type Result struct {
	TaskID    int
	ID        int
	ExitCode  int
	CreatedAt time.Time
}

// IsClean returns true if the evaluation finished, compliant or not.
func (r Result) IsClean() bool { return IsCleanExitCode(r.ExitCode) }

// Status returns a human readable result status.
func (r Result) Status() string { return StatusFromExitCode(r.ExitCode) }

// IsCleanExitCode returns true if the exit code means the tool evaluated the target.
func IsCleanExitCode(code int) bool {
	return code == ExitCodeCompliant || code == ExitCodeNonCompliant
}

// StatusFromExitCode returns a human readable status for a tool exit code.
func StatusFromExitCode(code int) string {
	switch code {
	case ExitCodeCompliant:
		return "compliant"
	case ExitCodeNonCompliant:
		return "non-compliant"
	case ExitCodeError:
		return "error"
	}
	return fmt.Sprintf("unknown (exit code %d)", code)
}

// EvaluationResult is the in-memory outcome of an ad-hoc evaluation.
type EvaluationResult struct {
	// Artifact is the raw results document written by the tool.
	Artifact []byte
	Stdout   string
	Stderr   string
	ExitCode int
}

// BulkScanScope selects which docker objects a bulk CVE scan evaluates.
type BulkScanScope string

const (
	// BulkScanScopeActive scans the running containers.
	BulkScanScopeActive BulkScanScope = "active"
	// BulkScanScopeAllImages scans every local image.
	BulkScanScopeAllImages BulkScanScope = "all-images"
	// BulkScanScopeAllContainers scans every container, running or not.
	BulkScanScopeAllContainers BulkScanScope = "all-containers"
	// BulkScanScopeList scans an explicit list of images or containers.
	BulkScanScopeList BulkScanScope = "list"
)

// BulkScanRequest is the request of a bulk CVE scan.
type BulkScanRequest struct {
	Scope BulkScanScope
	// Targets are the images or containers for the list scope.
	Targets []string
	// CPEIDs select the CVE feed used for every target.
	CPEIDs []string
}

// Validate validates the bulk scan request.
func (r BulkScanRequest) Validate() error {
	switch r.Scope {
	case BulkScanScopeActive, BulkScanScopeAllImages, BulkScanScopeAllContainers:
	case BulkScanScopeList:
		if len(r.Targets) == 0 {
			return fmt.Errorf("list scope requires targets: %w", ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown bulk scan scope %q: %w", r.Scope, ErrNotValid)
	}

	if len(r.CPEIDs) == 0 {
		return fmt.Errorf("at least one CPE ID is required: %w", ErrNotValid)
	}

	return nil
}

// BulkScanTargetResult is the outcome of scanning a single target of a bulk scan.
type BulkScanTargetResult struct {
	Target   string
	ExitCode int
	// Error is set when the target could not be evaluated.
	Error string
}

// BulkScanReport is the outcome of a bulk CVE scan.
type BulkScanReport struct {
	ID         string
	Scope      BulkScanScope
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []BulkScanTargetResult
}
