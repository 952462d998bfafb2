package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/app/bulkscan"
	"github.com/slok/scapd/internal/model"
)

type ScanCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	scope   string
	targets []string
	cpeIDs  []string
	format  string
}

// NewScanCommand returns the scan command.
func NewScanCommand(rootCmd *RootCommand, app *kingpin.Application) *ScanCommand {
	c := &ScanCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("scan", "CVE scan the local Docker images or containers.")
	c.Cmd.Flag("scope", "What to scan.").Default(string(model.BulkScanScopeActive)).EnumVar(&c.scope,
		string(model.BulkScanScopeActive),
		string(model.BulkScanScopeAllImages),
		string(model.BulkScanScopeAllContainers),
		string(model.BulkScanScopeList),
	)
	c.Cmd.Flag("cpe", "CPE ID selecting the CVE feed (repeatable).").Required().StringsVar(&c.cpeIDs)
	c.Cmd.Arg("targets", "Images or containers of the list scope.").StringsVar(&c.targets)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ScanCommand) Name() string { return c.Cmd.FullCommand() }

func (c ScanCommand) Run(ctx context.Context) error {
	req := model.BulkScanRequest{
		Scope:   model.BulkScanScope(c.scope),
		Targets: c.targets,
		CPEIDs:  c.cpeIDs,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid scan: %w", err)
	}

	a, err := newApp(ctx, *c.rootCmd, appOptions{BulkScans: true})
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := bulkscan.NewService(bulkscan.ServiceConfig{
		Scanner: a.system,
		Logger:  c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	report, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	return c.rootCmd.printer(c.format).PrintBulkScanReport(*report)
}
