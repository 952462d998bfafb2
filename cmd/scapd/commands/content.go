package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/config"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
)

// NewContentCommand returns the parent command of the content subcommands.
func NewContentCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("content", "Inspect the SCAP content.")
}

type ContentListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewContentListCommand returns the content list command.
func NewContentListCommand(rootCmd *RootCommand, contentCmd *kingpin.CmdClause) *ContentListCommand {
	c := &ContentListCommand{rootCmd: rootCmd}

	c.Cmd = contentCmd.Command("list", "List the SCAP Security Guide datastreams.")

	return c
}

func (c ContentListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ContentListCommand) Run(ctx context.Context) error {
	cfg, err := loadConfig(ctx, *c.rootCmd)
	if err != nil {
		return err
	}

	dss, err := config.SSGDatastreams(cfg.SSGDir)
	if err != nil {
		return err
	}
	if len(dss) == 0 {
		return fmt.Errorf("no datastreams in %s: %w", cfg.SSGDir, model.ErrNotFound)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(strings.Join(dss, "\n"))
}

type ContentProfilesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	input     string
	tailoring string
	format    string
}

// NewContentProfilesCommand returns the content profiles command.
func NewContentProfilesCommand(rootCmd *RootCommand, contentCmd *kingpin.CmdClause) *ContentProfilesCommand {
	c := &ContentProfilesCommand{rootCmd: rootCmd}

	c.Cmd = contentCmd.Command("profiles", "List the profiles of a content and its tailoring.")
	c.Cmd.Arg("input", "SCAP content, an absolute path or the inline content.").Required().StringVar(&c.input)
	c.Cmd.Flag("tailoring", "Tailoring, an absolute path or the inline content.").StringVar(&c.tailoring)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ContentProfilesCommand) Name() string { return c.Cmd.FullCommand() }

func (c ContentProfilesCommand) Run(ctx context.Context) error {
	profiles, err := oscap.ProfileChoices(model.ContentFromValue(c.input), model.ContentFromValue(c.tailoring))
	if err != nil {
		return fmt.Errorf("could not read profiles: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintProfiles(profiles)
}
