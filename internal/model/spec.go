package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// EvaluationMode is the kind of evaluation the external tool performs.
type EvaluationMode string

const (
	// EvaluationModeSDS evaluates an XCCDF benchmark from a source datastream.
	EvaluationModeSDS EvaluationMode = "sds"
	// EvaluationModeOVAL evaluates OVAL definitions.
	EvaluationModeOVAL EvaluationMode = "oval"
	// EvaluationModeCVEScan evaluates OVAL vulnerability definitions, the input can be
	// selected automatically from the CVE feeds using the spec CPE IDs.
	EvaluationModeCVEScan EvaluationMode = "cve_scan"
	// EvaluationModeStandardScan evaluates the standard profile of the default SSG content.
	EvaluationModeStandardScan EvaluationMode = "standard_scan"
)

// DefaultEvaluationMode is the mode used when none is set.
const DefaultEvaluationMode = EvaluationModeSDS

// StandardProfileID is the profile used by the standard scan mode.
const StandardProfileID = "xccdf_org.ssgproject.content_profile_standard"

// ParseEvaluationMode parses an evaluation mode name.
func ParseEvaluationMode(s string) (EvaluationMode, error) {
	switch m := EvaluationMode(strings.TrimSpace(s)); m {
	case EvaluationModeSDS, EvaluationModeOVAL, EvaluationModeCVEScan, EvaluationModeStandardScan:
		return m, nil
	case "":
		return DefaultEvaluationMode, nil
	}

	return "", fmt.Errorf("unknown evaluation mode %q: %w", s, ErrNotValid)
}

// Content is SCAP content referenced by file path or embedded inline. Only one of them is set.
type Content struct {
	FilePath string
	Contents string
}

// ContentFromValue autodetects the content kind: absolute paths are file references,
// anything else is inline contents. Empty clears the content.
func ContentFromValue(v string) Content {
	switch {
	case v == "":
		return Content{}
	case filepath.IsAbs(v):
		return Content{FilePath: filepath.Clean(v)}
	default:
		return Content{Contents: v}
	}
}

// IsSet returns true if the content has a file or inline contents.
func (c Content) IsSet() bool { return c.FilePath != "" || c.Contents != "" }

// IsInline returns true if the content is embedded.
func (c Content) IsInline() bool { return c.FilePath == "" && c.Contents != "" }

// Source returns the XML source of the content.
func (c Content) Source() ([]byte, error) {
	if c.FilePath == "" {
		return []byte(c.Contents), nil
	}

	b, err := os.ReadFile(c.FilePath)
	if err != nil {
		return nil, fmt.Errorf("could not read content file: %w", err)
	}
	return b, nil
}

// IsEquivalentTo returns true if both contents have the same XML source.
func (c Content) IsEquivalentTo(o Content) bool {
	if c == o {
		return true
	}
	if c.IsSet() != o.IsSet() {
		return false
	}

	a, err := c.Source()
	if err != nil {
		return false
	}
	b, err := o.Source()
	if err != nil {
		return false
	}

	return bytes.Equal(a, b)
}

// Input is the SCAP content a spec is evaluated with.
type Input struct {
	Content
	DatastreamID string
	XCCDFID      string
}

// IsEquivalentTo returns true if both inputs are the same.
func (i Input) IsEquivalentTo(o Input) bool {
	return i.DatastreamID == o.DatastreamID &&
		i.XCCDFID == o.XCCDFID &&
		i.Content.IsEquivalentTo(o.Content)
}

// EvaluationSpec describes a single evaluation: what content, on which target, how.
type EvaluationSpec struct {
	Mode              EvaluationMode
	Target            string
	Input             Input
	Tailoring         Content
	ProfileID         string
	OnlineRemediation bool
	// CPEIDs select the CVE feed for cve_scan specs without explicit input.
	CPEIDs []string
}

// NewEvaluationSpec returns a spec with the defaults set.
func NewEvaluationSpec() EvaluationSpec {
	return EvaluationSpec{
		Mode:   DefaultEvaluationMode,
		Target: DefaultTarget,
	}
}

// Validate validates the evaluation spec.
func (s EvaluationSpec) Validate() error {
	if _, err := ParseTarget(s.Target); err != nil {
		return err
	}

	mode, err := ParseEvaluationMode(string(s.Mode))
	if err != nil {
		return err
	}

	if s.Input.IsSet() {
		return nil
	}

	switch {
	case mode == EvaluationModeCVEScan && len(s.CPEIDs) > 0:
		return nil
	case mode == EvaluationModeStandardScan:
		// Falls back to the configured default content.
		return nil
	}

	return fmt.Errorf("input is required for %s evaluations: %w", mode, ErrNotValid)
}

// EffectiveMode returns the mode, or the default one when unset.
func (s EvaluationSpec) EffectiveMode() EvaluationMode {
	if s.Mode == "" {
		return DefaultEvaluationMode
	}
	return s.Mode
}

// IsEquivalentTo returns true if both specs would produce the same evaluation.
func (s EvaluationSpec) IsEquivalentTo(o EvaluationSpec) bool {
	return s.EffectiveMode() == o.EffectiveMode() &&
		s.Target == o.Target &&
		s.ProfileID == o.ProfileID &&
		s.OnlineRemediation == o.OnlineRemediation &&
		slices.Equal(s.CPEIDs, o.CPEIDs) &&
		s.Input.IsEquivalentTo(o.Input) &&
		s.Tailoring.IsEquivalentTo(o.Tailoring)
}

// Copy returns a deep copy of the spec.
func (s EvaluationSpec) Copy() EvaluationSpec {
	s.CPEIDs = slices.Clone(s.CPEIDs)
	return s
}
