package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/app/doctor"
	"github.com/slok/scapd/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks of the tools, content, data directory and feeds.")
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	cfg, err := loadConfig(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	feeds, err := newFeedManager(*c.rootCmd, cfg, true, nil)
	if err != nil {
		return err
	}

	svc, err := doctor.NewService(doctor.ServiceConfig{
		Config:        cfg,
		DataDir:       c.rootCmd.DataDir,
		FeedInspector: feeds,
		Logger:        c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	checks := svc.Run(ctx)
	if err := c.rootCmd.printer(c.format).PrintChecks(checks); err != nil {
		return err
	}
	if model.HasErrors(checks) {
		return fmt.Errorf("some checks failed")
	}

	return nil
}
