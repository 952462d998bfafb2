package oscap

import (
	"fmt"
	"strconv"

	"github.com/slok/scapd/internal/model"
)

// Tools are the paths of the evaluation tools, an empty path means the tool is not available.
type Tools struct {
	OSCAP       string
	OSCAPSSH    string
	OSCAPDocker string
	OSCAPVM     string
	OSCAPChroot string
}

// targetCommand returns the command prefix that evaluates on the target.
func (t Tools) targetCommand(target model.Target) ([]string, error) {
	toolFor := func(name, path string, args ...string) ([]string, error) {
		if path == "" {
			return nil, fmt.Errorf("target %q requires the %s tool which hasn't been found: %w", target, name, model.ErrNotValid)
		}
		return append([]string{path}, args...), nil
	}

	switch target.Kind {
	case model.TargetKindLocalhost:
		return toolFor("oscap", t.OSCAP)
	case model.TargetKindSSH:
		return toolFor("oscap-ssh", t.OSCAPSSH, target.Name, strconv.Itoa(target.Port))
	case model.TargetKindDockerImage:
		return toolFor("oscap-docker", t.OSCAPDocker, "image", target.Name)
	case model.TargetKindDockerContainer:
		return toolFor("oscap-docker", t.OSCAPDocker, "container", target.Name)
	case model.TargetKindVMDomain:
		return toolFor("oscap-vm", t.OSCAPVM, "domain", target.Name)
	case model.TargetKindVMImage:
		return toolFor("oscap-vm", t.OSCAPVM, "image", target.Name)
	case model.TargetKindChroot:
		return toolFor("oscap-chroot", t.OSCAPChroot, target.Name)
	}

	return nil, fmt.Errorf("unrecognized target %q: %w", target, model.ErrNotValid)
}

// resolvedSpec is a spec with its content materialized as files.
type resolvedSpec struct {
	spec          model.EvaluationSpec
	inputPath     string
	tailoringPath string
}

// evaluationArgs returns the tool arguments that evaluate the spec, results are written to resultsFile.
func evaluationArgs(r resolvedSpec, resultsFile string) ([]string, error) {
	s := r.spec
	switch s.EffectiveMode() {
	case model.EvaluationModeSDS:
		args := []string{"xccdf", "eval"}
		if s.Input.DatastreamID != "" {
			args = append(args, "--datastream-id", s.Input.DatastreamID)
		}
		if s.Input.XCCDFID != "" {
			args = append(args, "--xccdf-id", s.Input.XCCDFID)
		}
		if r.tailoringPath != "" {
			args = append(args, "--tailoring-file", r.tailoringPath)
		}
		if s.ProfileID != "" {
			args = append(args, "--profile", s.ProfileID)
		}
		args = append(args, "--results-arf", resultsFile)
		if s.OnlineRemediation {
			args = append(args, "--remediate")
		}
		return append(args, r.inputPath), nil

	case model.EvaluationModeOVAL, model.EvaluationModeCVEScan:
		return []string{"oval", "eval", "--results", resultsFile, r.inputPath}, nil

	case model.EvaluationModeStandardScan:
		args := []string{"xccdf", "eval", "--profile", model.StandardProfileID, "--results-arf", resultsFile}
		if s.OnlineRemediation {
			args = append(args, "--remediate")
		}
		return append(args, r.inputPath), nil
	}

	return nil, fmt.Errorf("unknown evaluation mode %q: %w", s.Mode, model.ErrNotValid)
}

func guideArgs(r resolvedSpec) []string {
	s := r.spec
	args := []string{"xccdf", "generate", "guide"}
	if s.Input.DatastreamID != "" {
		args = append(args, "--datastream-id", s.Input.DatastreamID)
	}
	if s.Input.XCCDFID != "" {
		args = append(args, "--xccdf-id", s.Input.XCCDFID)
	}
	if r.tailoringPath != "" {
		args = append(args, "--tailoring-file", r.tailoringPath)
	}
	if s.ProfileID != "" {
		args = append(args, "--profile", s.ProfileID)
	}

	return append(args, r.inputPath)
}

func reportArgs(mode model.EvaluationMode, resultsPath string) ([]string, error) {
	switch mode {
	case model.EvaluationModeSDS, model.EvaluationModeStandardScan:
		return []string{"xccdf", "generate", "report", resultsPath}, nil
	case model.EvaluationModeOVAL, model.EvaluationModeCVEScan:
		return []string{"oval", "generate", "report", resultsPath}, nil
	}

	return nil, fmt.Errorf("unknown evaluation mode %q: %w", mode, model.ErrNotValid)
}
