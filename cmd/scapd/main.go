package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/scapd/cmd/scapd/commands"
	"github.com/slok/scapd/internal/log"
	loglogrus "github.com/slok/scapd/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("scapd", "SCAP compliance scanning daemon and tool.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	daemonCmd := commands.NewDaemonCommand(rootCmd, app)
	evalCmd := commands.NewEvalCommand(rootCmd, app)
	scanCmd := commands.NewScanCommand(rootCmd, app)
	doctorCmd := commands.NewDoctorCommand(rootCmd, app)

	taskCmd := commands.NewTaskCommand(app)
	taskCreateCmd := commands.NewTaskCreateCommand(rootCmd, taskCmd)
	taskListCmd := commands.NewTaskListCommand(rootCmd, taskCmd)
	taskShowCmd := commands.NewTaskShowCommand(rootCmd, taskCmd)
	taskSetCmd := commands.NewTaskSetCommand(rootCmd, taskCmd)
	taskEnableCmd := commands.NewTaskEnableCommand(rootCmd, taskCmd, true)
	taskDisableCmd := commands.NewTaskEnableCommand(rootCmd, taskCmd, false)
	taskRmCmd := commands.NewTaskRemoveCommand(rootCmd, taskCmd)
	taskRunCmd := commands.NewTaskRunCommand(rootCmd, taskCmd)
	taskGuideCmd := commands.NewTaskGuideCommand(rootCmd, taskCmd)

	resultCmd := commands.NewResultCommand(app)
	resultListCmd := commands.NewResultListCommand(rootCmd, resultCmd)
	resultShowCmd := commands.NewResultShowCommand(rootCmd, resultCmd)
	resultRmCmd := commands.NewResultRemoveCommand(rootCmd, resultCmd)
	resultReportCmd := commands.NewResultReportCommand(rootCmd, resultCmd)

	feedCmd := commands.NewFeedCommand(app)
	feedGetCmd := commands.NewFeedGetCommand(rootCmd, feedCmd)
	feedFetchAllCmd := commands.NewFeedFetchAllCommand(rootCmd, feedCmd)

	contentCmd := commands.NewContentCommand(app)
	contentListCmd := commands.NewContentListCommand(rootCmd, contentCmd)
	contentProfilesCmd := commands.NewContentProfilesCommand(rootCmd, contentCmd)

	cmds := map[string]commands.Command{
		daemonCmd.Name():          daemonCmd,
		evalCmd.Name():            evalCmd,
		scanCmd.Name():            scanCmd,
		doctorCmd.Name():          doctorCmd,
		taskCreateCmd.Name():      taskCreateCmd,
		taskListCmd.Name():        taskListCmd,
		taskShowCmd.Name():        taskShowCmd,
		taskSetCmd.Name():         taskSetCmd,
		taskEnableCmd.Name():      taskEnableCmd,
		taskDisableCmd.Name():     taskDisableCmd,
		taskRmCmd.Name():          taskRmCmd,
		taskRunCmd.Name():         taskRunCmd,
		taskGuideCmd.Name():       taskGuideCmd,
		resultListCmd.Name():      resultListCmd,
		resultShowCmd.Name():      resultShowCmd,
		resultRmCmd.Name():        resultRmCmd,
		resultReportCmd.Name():    resultReportCmd,
		feedGetCmd.Name():         feedGetCmd,
		feedFetchAllCmd.Name():    feedFetchAllCmd,
		contentListCmd.Name():     contentListCmd,
		contentProfilesCmd.Name(): contentProfilesCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Printer commands don't log unless debugging, logs would mix with the output.
	printerCommands := map[string]bool{
		"task list":        true,
		"task show":        true,
		"result list":      true,
		"result show":      true,
		"content list":     true,
		"content profiles": true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(ctx, *rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Logs go to stderr so stdout only has the command output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)

		var exitErr commands.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
