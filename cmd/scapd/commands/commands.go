package commands

import (
	"context"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	ConfigPath string
	// DaemonAddress forces the daemon the task changes go through.
	DaemonAddress string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory with the tasks, results and cached feeds.").Envar("SCAPD_DATA_DIR").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("config", "Path to the configuration file, defaults to the one in the data directory.").Envar("SCAPD_CONFIG").StringVar(&c.ConfigPath)
	app.Flag("daemon-address", "API address of the daemon that owns the tasks, discovered from the data directory by default.").Envar("SCAPD_DAEMON_ADDRESS").StringVar(&c.DaemonAddress)

	return c
}

// configFilePath returns the configuration file the commands use.
func (r RootCommand) configFilePath() string {
	if r.ConfigPath != "" {
		return r.ConfigPath
	}
	return conventions.ConfigFilePath(r.DataDir)
}

func (r RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

func formatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(format, formatTable, formatJSON)
}
