package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/app/resultlist"
)

// NewResultCommand returns the parent command of the result subcommands.
func NewResultCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("result", "Inspect the stored task results.")
}

type ResultListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID     int
	onlyFailed bool
	limit      int
	format     string
}

// NewResultListCommand returns the result list command.
func NewResultListCommand(rootCmd *RootCommand, resultCmd *kingpin.CmdClause) *ResultListCommand {
	c := &ResultListCommand{rootCmd: rootCmd}

	c.Cmd = resultCmd.Command("list", "List the results of a task, newest first.")
	c.Cmd.Arg("task-id", "Task ID.").Required().IntVar(&c.taskID)
	c.Cmd.Flag("failed", "Only the results that are not compliant.").BoolVar(&c.onlyFailed)
	c.Cmd.Flag("limit", "Maximum number of results, 0 lists all.").IntVar(&c.limit)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ResultListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResultListCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := resultlist.NewService(resultlist.ServiceConfig{
		Results: a.system,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	results, err := svc.Run(ctx, resultlist.Request{
		TaskID:     c.taskID,
		OnlyFailed: c.onlyFailed,
		Limit:      c.limit,
	})
	if err != nil {
		return err
	}

	return c.rootCmd.printer(c.format).PrintResultList(results)
}

type ResultShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID   int
	resultID int
	format   string
	stdout   bool
	stderr   bool
	artifact bool
}

// NewResultShowCommand returns the result show command.
func NewResultShowCommand(rootCmd *RootCommand, resultCmd *kingpin.CmdClause) *ResultShowCommand {
	c := &ResultShowCommand{rootCmd: rootCmd}

	c.Cmd = resultCmd.Command("show", "Show a task result.")
	c.Cmd.Arg("task-id", "Task ID.").Required().IntVar(&c.taskID)
	c.Cmd.Arg("result-id", "Result ID.").Required().IntVar(&c.resultID)
	c.Cmd.Flag("stdout", "Print the captured tool standard output.").BoolVar(&c.stdout)
	c.Cmd.Flag("stderr", "Print the captured tool standard error.").BoolVar(&c.stderr)
	c.Cmd.Flag("results", "Print the results XML.").BoolVar(&c.artifact)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ResultShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResultShowCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var get func(ctx context.Context, taskID, resultID int) ([]byte, error)
	switch {
	case c.stdout:
		get = a.system.GetTaskResultStdout
	case c.stderr:
		get = a.system.GetTaskResultStderr
	case c.artifact:
		get = a.system.GetTaskResultArtifact
	}

	if get != nil {
		data, err := get(ctx, c.taskID, c.resultID)
		if err != nil {
			return err
		}
		return c.rootCmd.writeOutput("", data)
	}

	res, err := a.system.GetTaskResult(ctx, c.taskID, c.resultID)
	if err != nil {
		return err
	}

	return c.rootCmd.printer(c.format).PrintResult(*res)
}

type ResultRemoveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID   int
	resultID int
	all      bool
}

// NewResultRemoveCommand returns the result rm command.
func NewResultRemoveCommand(rootCmd *RootCommand, resultCmd *kingpin.CmdClause) *ResultRemoveCommand {
	c := &ResultRemoveCommand{rootCmd: rootCmd}

	c.Cmd = resultCmd.Command("rm", "Remove one or all the results of a task.")
	c.Cmd.Arg("task-id", "Task ID.").Required().IntVar(&c.taskID)
	c.Cmd.Arg("result-id", "Result ID.").IntVar(&c.resultID)
	c.Cmd.Flag("all", "Remove all the task results.").BoolVar(&c.all)

	return c
}

func (c ResultRemoveCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResultRemoveCommand) Run(ctx context.Context) error {
	if c.all == (c.resultID != 0) {
		return fmt.Errorf("a result ID or --all is required, but not both")
	}

	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.all {
		if err := reg.RemoveTaskResults(ctx, c.taskID); err != nil {
			return err
		}
		return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Removed task %d results", c.taskID))
	}

	if err := reg.RemoveTaskResult(ctx, c.taskID, c.resultID); err != nil {
		return err
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Removed task %d result: %d", c.taskID, c.resultID))
}

type ResultReportCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID   int
	resultID int
	output   string
}

// NewResultReportCommand returns the result report command.
func NewResultReportCommand(rootCmd *RootCommand, resultCmd *kingpin.CmdClause) *ResultReportCommand {
	c := &ResultReportCommand{rootCmd: rootCmd}

	c.Cmd = resultCmd.Command("report", "Generate the HTML report of a task result.")
	c.Cmd.Arg("task-id", "Task ID.").Required().IntVar(&c.taskID)
	c.Cmd.Arg("result-id", "Result ID.").Required().IntVar(&c.resultID)
	c.Cmd.Flag("output", "Write the report to this file instead of the standard output.").Short('o').StringVar(&c.output)

	return c
}

func (c ResultReportCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResultReportCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{DisableFetch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.system.GenerateReportForTaskResult(ctx, c.taskID, c.resultID)
	if err != nil {
		return fmt.Errorf("could not generate report: %w", err)
	}

	return c.rootCmd.writeOutput(c.output, report)
}
