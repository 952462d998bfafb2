package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/model"
)

// NewTaskCommand returns the parent command of the task subcommands.
func NewTaskCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("task", "Manage the scheduled evaluation tasks.")
}

type TaskCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	flags  taskFlags
	enable bool
}

// NewTaskCreateCommand returns the task create command.
func NewTaskCreateCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskCreateCommand {
	c := &TaskCreateCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("create", "Create a task.")
	c.flags.register(c.Cmd)
	c.Cmd.Flag("enable", "Enable the task once created.").BoolVar(&c.enable)

	return c
}

func (c TaskCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskCreateCommand) Run(ctx context.Context) error {
	upd, err := c.flags.update(time.Now())
	if err != nil {
		return err
	}
	if c.enable {
		upd.Enabled = &c.enable
	}

	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := reg.AddTask(ctx, upd)
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Created task: %d", id))
}

type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List the tasks.")
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := c.rootCmd.printer(c.format).PrintTaskList(a.system.ListTasks()); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}

type TaskShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     int
	format string
}

// NewTaskShowCommand returns the task show command.
func NewTaskShowCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskShowCommand {
	c := &TaskShowCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("show", "Show a task.")
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c TaskShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskShowCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.system.GetTask(c.id)
	if err != nil {
		return err
	}
	resultIDs, err := a.system.ListTaskResultIDs(ctx, c.id)
	if err != nil {
		return err
	}

	return c.rootCmd.printer(c.format).PrintTask(*task, resultIDs)
}

type TaskSetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id    int
	flags taskFlags
}

// NewTaskSetCommand returns the task set command.
func NewTaskSetCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskSetCommand {
	c := &TaskSetCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("set", "Modify a task, only the given flags are changed.")
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)
	c.flags.register(c.Cmd)

	return c
}

func (c TaskSetCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskSetCommand) Run(ctx context.Context) error {
	upd, err := c.flags.update(time.Now())
	if err != nil {
		return err
	}

	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := reg.UpdateTask(ctx, c.id, upd); err != nil {
		return fmt.Errorf("could not modify task %d: %w", c.id, err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Modified task: %d", c.id))
}

type TaskEnableCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     int
	enable bool
}

// NewTaskEnableCommand returns the task enable or disable command.
func NewTaskEnableCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause, enable bool) *TaskEnableCommand {
	c := &TaskEnableCommand{rootCmd: rootCmd, enable: enable}

	if enable {
		c.Cmd = taskCmd.Command("enable", "Enable a task, it will run on its schedule.")
	} else {
		c.Cmd = taskCmd.Command("disable", "Disable a task.")
	}
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)

	return c
}

func (c TaskEnableCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskEnableCommand) Run(ctx context.Context) error {
	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := reg.UpdateTask(ctx, c.id, model.TaskUpdate{Enabled: &c.enable}); err != nil {
		return err
	}

	state := "Disabled"
	if c.enable {
		state = "Enabled"
	}
	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("%s task: %d", state, c.id))
}

type TaskRemoveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id            int
	removeResults bool
}

// NewTaskRemoveCommand returns the task rm command.
func NewTaskRemoveCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskRemoveCommand {
	c := &TaskRemoveCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("rm", "Remove a disabled task.")
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)
	c.Cmd.Flag("remove-results", "Remove the task results too.").BoolVar(&c.removeResults)

	return c
}

func (c TaskRemoveCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskRemoveCommand) Run(ctx context.Context) error {
	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := reg.RemoveTask(ctx, c.id, c.removeResults); err != nil {
		return err
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Removed task: %d", c.id))
}

type TaskRunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id int
}

// NewTaskRunCommand returns the task run command.
func NewTaskRunCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskRunCommand {
	c := &TaskRunCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("run", "Run an enabled task now, outside its schedule, and wait for the result.")
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)

	return c
}

func (c TaskRunCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskRunCommand) Run(ctx context.Context) error {
	a, reg, err := newTaskApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer a.Close()

	before, err := a.repo.ListResultIDs(ctx, c.id)
	if err != nil {
		return err
	}

	if err := reg.RunTaskOutsideSchedule(ctx, c.id); err != nil {
		return err
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := reg.TaskRunState(ctx, c.id)
		if err != nil {
			return fmt.Errorf("could not check task %d run: %w", c.id, err)
		}
		if !state.Pending() {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	ids, err := a.repo.ListResultIDs(ctx, c.id)
	if err != nil {
		return err
	}
	if len(ids) == 0 || (len(before) > 0 && ids[0] <= before[0]) {
		return fmt.Errorf("task %d run did not store a result, check the logs", c.id)
	}
	res, err := a.system.GetTaskResult(ctx, c.id, ids[0])
	if err != nil {
		return err
	}

	return c.rootCmd.printer(formatTable).PrintResult(*res)
}

type TaskGuideCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     int
	output string
}

// NewTaskGuideCommand returns the task guide command.
func NewTaskGuideCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskGuideCommand {
	c := &TaskGuideCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("guide", "Generate the HTML guide of the task content and profile.")
	c.Cmd.Arg("id", "Task ID.").Required().IntVar(&c.id)
	c.Cmd.Flag("output", "Write the guide to this file instead of the standard output.").Short('o').StringVar(&c.output)

	return c
}

func (c TaskGuideCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskGuideCommand) Run(ctx context.Context) error {
	a, err := newApp(ctx, *c.rootCmd, appOptions{DisableFetch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	guide, err := a.system.GenerateGuideForTask(ctx, c.id)
	if err != nil {
		return fmt.Errorf("could not generate guide: %w", err)
	}

	return c.rootCmd.writeOutput(c.output, guide)
}

// writeOutput writes data to the file, or to stdout when empty.
func (r RootCommand) writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := r.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write %q: %w", path, err)
	}

	return nil
}
