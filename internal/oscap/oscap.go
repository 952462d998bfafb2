package oscap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

// FeedProvider returns the local path of the CVE feed matching the CPE IDs.
type FeedProvider interface {
	GetForCPEs(ctx context.Context, cpeIDs []string) (string, error)
}

// Evaluation is a finished evaluation stored in a work in progress directory.
type Evaluation struct {
	// Dir has the results, stdout, stderr and exit code files.
	Dir      string
	ExitCode int
	Duration time.Duration
}

// EvaluatorConfig is the configuration of the Evaluator.
type EvaluatorConfig struct {
	Tools Tools
	// WorkInProgressDir is where evaluation directories are created.
	WorkInProgressDir string
	// StandardScanInput is the content used by standard scans without explicit input.
	StandardScanInput string
	// FeedProvider resolves the input of CVE scans without explicit input, optional.
	FeedProvider FeedProvider
	Logger       log.Logger
	// KillGracePeriod is the time given to a cancelled tool before it's killed.
	KillGracePeriod time.Duration
}

func (c *EvaluatorConfig) defaults() error {
	if c.WorkInProgressDir == "" {
		return fmt.Errorf("work in progress directory is required")
	}

	if c.KillGracePeriod == 0 {
		c.KillGracePeriod = 10 * time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "oscap.Evaluator"})

	return nil
}

// Evaluator runs the oscap tool family as subprocesses.
type Evaluator struct {
	tools             Tools
	wipDir            string
	standardScanInput string
	feeds             FeedProvider
	killGracePeriod   time.Duration
	logger            log.Logger
}

// NewEvaluator returns a new Evaluator.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Evaluator{
		tools:             cfg.Tools,
		wipDir:            cfg.WorkInProgressDir,
		standardScanInput: cfg.StandardScanInput,
		feeds:             cfg.FeedProvider,
		killGracePeriod:   cfg.KillGracePeriod,
		logger:            cfg.Logger,
	}, nil
}

// Evaluate runs the spec evaluation in a new work in progress directory.
// A tool that fails to start is recorded as exit code 1, it's not an error.
// If ctx is cancelled the tool is killed, the directory removed and the ctx cause returned.
func (e *Evaluator) Evaluate(ctx context.Context, spec model.EvaluationSpec) (*Evaluation, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("can't evaluate an invalid spec: %w", err)
	}

	target, err := model.ParseTarget(spec.Target)
	if err != nil {
		return nil, err
	}
	prefix, err := e.tools.targetCommand(target)
	if err != nil {
		return nil, err
	}

	dir, err := e.newWorkDir()
	if err != nil {
		return nil, err
	}
	removeDir := true
	defer func() {
		if removeDir {
			_ = os.RemoveAll(dir)
		}
	}()

	resolved, cleanup, err := e.resolve(ctx, spec, dir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args, err := evaluationArgs(resolved, conventions.ResultArtifactFile)
	if err != nil {
		return nil, err
	}
	args = append(prefix, args...)

	stdout, err := os.Create(filepath.Join(dir, conventions.ResultStdoutFile))
	if err != nil {
		return nil, fmt.Errorf("could not create stdout file: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(dir, conventions.ResultStderrFile))
	if err != nil {
		return nil, fmt.Errorf("could not create stderr file: %w", err)
	}
	defer stderr.Close()

	logger := e.logger.WithCtxValues(ctx).WithValues(log.Kv{"target": target.String(), "mode": spec.EffectiveMode()})
	logger.Debugf("Starting evaluation with command %q", strings.Join(args, " "))

	start := time.Now()
	cmd := e.command(ctx, args)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	exitCode, err := runExitCode(cmd)
	duration := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", context.Cause(ctx))
	}
	if err != nil {
		logger.Errorf("Failed to execute the evaluation tool: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, conventions.ResultExitCodeFile), []byte(strconv.Itoa(exitCode)), 0o644); err != nil {
		return nil, fmt.Errorf("could not write exit code: %w", err)
	}

	switch exitCode {
	case model.ExitCodeCompliant:
		logger.Infof("Evaluated spec, exit code 0 means the target evaluated as compliant")
	case model.ExitCodeNonCompliant:
		logger.Warningf("Evaluated spec, exit code 2 means the target evaluated as non-compliant")
	case model.ExitCodeError:
		logger.Errorf("Spec failed to evaluate, it may not be possible to get results or generate reports for this evaluation")
	default:
		logger.Errorf("Evaluated spec with unknown exit code %d", exitCode)
	}

	removeDir = false
	return &Evaluation{Dir: dir, ExitCode: exitCode, Duration: duration}, nil
}

// GenerateReport returns the HTML report of a stored evaluation directory.
func (e *Evaluator) GenerateReport(ctx context.Context, spec model.EvaluationSpec, resultDir string) ([]byte, error) {
	if e.tools.OSCAP == "" {
		return nil, fmt.Errorf("generating reports requires the oscap tool which hasn't been found: %w", model.ErrNotValid)
	}

	resultsPath := filepath.Join(resultDir, conventions.ResultArtifactFile)
	if _, err := os.Stat(resultsPath); err != nil {
		return nil, fmt.Errorf("expected results at %q: %w", resultsPath, model.ErrNotFound)
	}

	args, err := reportArgs(spec.EffectiveMode(), resultsPath)
	if err != nil {
		return nil, err
	}

	return e.output(ctx, append([]string{e.tools.OSCAP}, args...))
}

// GenerateGuide returns the HTML guide of a spec, only source datastream specs are supported.
func (e *Evaluator) GenerateGuide(ctx context.Context, spec model.EvaluationSpec) ([]byte, error) {
	if spec.EffectiveMode() != model.EvaluationModeSDS {
		return nil, fmt.Errorf("guides can only be generated for %s specs, got %s: %w", model.EvaluationModeSDS, spec.EffectiveMode(), model.ErrNotValid)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("can't generate guide for an invalid spec: %w", err)
	}
	if e.tools.OSCAP == "" {
		return nil, fmt.Errorf("generating guides requires the oscap tool which hasn't been found: %w", model.ErrNotValid)
	}

	dir, err := e.newWorkDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	resolved, cleanup, err := e.resolve(ctx, spec, dir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return e.output(ctx, append([]string{e.tools.OSCAP}, guideArgs(resolved)...))
}

// ReadEvaluationResult loads an evaluation directory in memory.
func ReadEvaluationResult(dir string) (*model.EvaluationResult, error) {
	read := func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not read %s: %w", name, err)
		}
		return b, nil
	}

	artifact, err := read(conventions.ResultArtifactFile)
	if err != nil {
		return nil, err
	}
	stdout, err := read(conventions.ResultStdoutFile)
	if err != nil {
		return nil, err
	}
	stderr, err := read(conventions.ResultStderrFile)
	if err != nil {
		return nil, err
	}
	exitCodeRaw, err := read(conventions.ResultExitCodeFile)
	if err != nil {
		return nil, err
	}
	exitCode, err := strconv.Atoi(strings.TrimSpace(string(exitCodeRaw)))
	if err != nil {
		exitCode = model.ExitCodeError
	}

	return &model.EvaluationResult{
		Artifact: artifact,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: exitCode,
	}, nil
}

func (e *Evaluator) newWorkDir() (string, error) {
	if err := os.MkdirAll(e.wipDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create work in progress directory: %w", err)
	}

	dir := filepath.Join(e.wipDir, ulid.Make().String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create evaluation directory: %w", err)
	}

	return dir, nil
}

// resolve materializes inline content and selects the default inputs.
func (e *Evaluator) resolve(ctx context.Context, spec model.EvaluationSpec, dir string) (resolvedSpec, func(), error) {
	r := resolvedSpec{spec: spec}
	var created []string
	cleanup := func() {
		for _, p := range created {
			_ = os.Remove(p)
		}
	}

	materialize := func(c model.Content, name string) (string, error) {
		if c.FilePath != "" {
			return c.FilePath, nil
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(c.Contents), 0o600); err != nil {
			return "", fmt.Errorf("could not write %s: %w", name, err)
		}
		created = append(created, path)
		return path, nil
	}

	var err error
	switch {
	case spec.Input.IsSet():
		r.inputPath, err = materialize(spec.Input.Content, conventions.InputFile)
		if err != nil {
			cleanup()
			return r, nil, err
		}

	case spec.EffectiveMode() == model.EvaluationModeCVEScan:
		if e.feeds == nil {
			return r, nil, fmt.Errorf("CVE scans without input require the CVE feeds: %w", model.ErrNotValid)
		}
		r.inputPath, err = e.feeds.GetForCPEs(ctx, spec.CPEIDs)
		if err != nil {
			return r, nil, fmt.Errorf("could not get CVE feed: %w", err)
		}

	case spec.EffectiveMode() == model.EvaluationModeStandardScan:
		if e.standardScanInput == "" {
			return r, nil, fmt.Errorf("standard scans without input require the default SSG content: %w", model.ErrNotValid)
		}
		r.inputPath = e.standardScanInput
	}

	if spec.Tailoring.IsSet() {
		r.tailoringPath, err = materialize(spec.Tailoring, conventions.TailoringFile)
		if err != nil {
			cleanup()
			return r, nil, err
		}
	}

	return r, cleanup, nil
}

func (e *Evaluator) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = e.killGracePeriod
	return cmd
}

func (e *Evaluator) output(ctx context.Context, args []string) ([]byte, error) {
	e.logger.WithCtxValues(ctx).Debugf("Running %q", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := e.command(ctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(args[0]), err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// runExitCode runs the command and returns its exit code, a command that
// can't be started is reported as an evaluation error.
func runExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return model.ExitCodeCompliant, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}

	return model.ExitCodeError, err
}
