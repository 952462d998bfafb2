package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/app/evaluate"
	"github.com/slok/scapd/internal/model"
)

// ExitCodeError makes the process exit with the evaluation tool exit code.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("evaluation finished with status %s", model.StatusFromExitCode(e.Code))
}

// specFlags are the flags of a one-off evaluation spec.
type specFlags struct {
	target, mode, input, datastreamID, xccdfID, tailoring, profile string
	remediate                                                      bool
	cpeIDs                                                         []string
}

func (f *specFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("target", "Evaluation target (localhost, ssh://host:port, docker-image://name, docker-container://name, vm-domain://name, vm-image://path, chroot://path).").Default(model.DefaultTarget).StringVar(&f.target)
	cmd.Flag("mode", "Evaluation mode (sds, oval, cve_scan, standard_scan).").Default(string(model.DefaultEvaluationMode)).StringVar(&f.mode)
	cmd.Flag("input", "SCAP content, an absolute path or the inline content.").StringVar(&f.input)
	cmd.Flag("datastream-id", "Datastream of the input.").StringVar(&f.datastreamID)
	cmd.Flag("xccdf-id", "XCCDF component of the input.").StringVar(&f.xccdfID)
	cmd.Flag("tailoring", "Tailoring, an absolute path or the inline content.").StringVar(&f.tailoring)
	cmd.Flag("profile", "Profile ID.").StringVar(&f.profile)
	cmd.Flag("remediate", "Remediate the failed rules during the evaluation.").BoolVar(&f.remediate)
	cmd.Flag("cpe", "CPE ID selecting the CVE feed of cve_scan evaluations (repeatable).").StringsVar(&f.cpeIDs)
}

func (f specFlags) spec() (model.EvaluationSpec, error) {
	mode, err := model.ParseEvaluationMode(f.mode)
	if err != nil {
		return model.EvaluationSpec{}, err
	}
	target, err := model.ParseTarget(f.target)
	if err != nil {
		return model.EvaluationSpec{}, err
	}

	spec := model.EvaluationSpec{
		Mode:   mode,
		Target: target.String(),
		Input: model.Input{
			Content:      model.ContentFromValue(f.input),
			DatastreamID: f.datastreamID,
			XCCDFID:      f.xccdfID,
		},
		Tailoring:         model.ContentFromValue(f.tailoring),
		ProfileID:         f.profile,
		OnlineRemediation: f.remediate,
		CPEIDs:            f.cpeIDs,
	}
	if err := spec.Validate(); err != nil {
		return model.EvaluationSpec{}, err
	}

	return spec, nil
}

type EvalCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	flags       specFlags
	resultsPath string
	showStdout  bool
}

// NewEvalCommand returns the eval command.
func NewEvalCommand(rootCmd *RootCommand, app *kingpin.Application) *EvalCommand {
	c := &EvalCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("eval", "Evaluate a spec once without storing a task, the exit code is the tool one.")
	c.flags.register(c.Cmd)
	c.Cmd.Flag("results", "Write the results XML to this file.").StringVar(&c.resultsPath)
	c.Cmd.Flag("stdout", "Print the tool standard output.").BoolVar(&c.showStdout)

	return c
}

func (c EvalCommand) Name() string { return c.Cmd.FullCommand() }

func (c EvalCommand) Run(ctx context.Context) error {
	spec, err := c.flags.spec()
	if err != nil {
		return fmt.Errorf("invalid evaluation: %w", err)
	}

	a, err := newApp(ctx, *c.rootCmd, appOptions{Jobs: 1})
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := evaluate.NewService(evaluate.ServiceConfig{
		Evaluator: a.system,
		Logger:    c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, evaluate.Request{Spec: spec})
	if err != nil {
		return err
	}

	if c.resultsPath != "" && len(res.Artifact) > 0 {
		if err := os.WriteFile(c.resultsPath, res.Artifact, 0o644); err != nil {
			return fmt.Errorf("could not write results: %w", err)
		}
	}
	if c.showStdout {
		if err := c.rootCmd.writeOutput("", []byte(res.Stdout)); err != nil {
			return err
		}
	}
	if res.Stderr != "" {
		c.rootCmd.Logger.Debugf("Tool stderr: %s", res.Stderr)
	}

	if res.ExitCode != model.ExitCodeCompliant {
		return ExitCodeError{Code: res.ExitCode}
	}

	return nil
}
