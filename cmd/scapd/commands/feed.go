package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"
)

// NewFeedCommand returns the parent command of the feed subcommands.
func NewFeedCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("feed", "Manage the cached CVE feeds.")
}

type FeedGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	cpeIDs []string
}

// NewFeedGetCommand returns the feed get command.
func NewFeedGetCommand(rootCmd *RootCommand, feedCmd *kingpin.CmdClause) *FeedGetCommand {
	c := &FeedGetCommand{rootCmd: rootCmd}

	c.Cmd = feedCmd.Command("get", "Refresh the CVE feed of the CPE IDs and print its local path.")
	c.Cmd.Arg("cpe", "CPE IDs.").Required().StringsVar(&c.cpeIDs)

	return c
}

func (c FeedGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c FeedGetCommand) Run(ctx context.Context) error {
	cfg, err := loadConfig(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	feeds, err := newFeedManager(*c.rootCmd, cfg, false, nil)
	if err != nil {
		return err
	}

	path, err := feeds.GetForCPEs(ctx, c.cpeIDs)
	if err != nil {
		return fmt.Errorf("could not get feed: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(path)
}

type FeedFetchAllCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewFeedFetchAllCommand returns the feed fetch-all command.
func NewFeedFetchAllCommand(rootCmd *RootCommand, feedCmd *kingpin.CmdClause) *FeedFetchAllCommand {
	c := &FeedFetchAllCommand{rootCmd: rootCmd}

	c.Cmd = feedCmd.Command("fetch-all", "Refresh every configured CVE feed.")

	return c
}

func (c FeedFetchAllCommand) Name() string { return c.Cmd.FullCommand() }

func (c FeedFetchAllCommand) Run(ctx context.Context) error {
	cfg, err := loadConfig(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	feeds, err := newFeedManager(*c.rootCmd, cfg, false, nil)
	if err != nil {
		return err
	}

	paths, fetchErr := feeds.FetchAll(ctx)
	if len(paths) > 0 {
		if err := c.rootCmd.printer(formatTable).PrintMessage(strings.Join(paths, "\n")); err != nil {
			return err
		}
	}
	if fetchErr != nil {
		return fmt.Errorf("some feeds could not be fetched: %w", fetchErr)
	}

	return nil
}
