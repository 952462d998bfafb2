package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/scapd/internal/api"
	metricsprometheus "github.com/slok/scapd/internal/metrics/prometheus"
	"github.com/slok/scapd/internal/model"
)

type DaemonCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	jobs           int
	listenAddress  string
	reloadInterval time.Duration
	noBulkScans    bool
}

// NewDaemonCommand returns the daemon command.
func NewDaemonCommand(rootCmd *RootCommand, app *kingpin.Application) *DaemonCommand {
	c := &DaemonCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("daemon", "Run the scheduler daemon.")
	c.Cmd.Flag("jobs", "Evaluations that can run at the same time, overrides the configuration.").IntVar(&c.jobs)
	c.Cmd.Flag("listen-address", "Address of the health, metrics and API server, overrides the configuration.").StringVar(&c.listenAddress)
	c.Cmd.Flag("reload-interval", "How often the stored tasks are reloaded, 0 disables it (SIGHUP always reloads).").Default("1m").DurationVar(&c.reloadInterval)
	c.Cmd.Flag("no-bulk-scans", "Disable the Docker target discovery.").BoolVar(&c.noBulkScans)

	return c
}

func (c DaemonCommand) Name() string { return c.Cmd.FullCommand() }

func (c DaemonCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	recorder := metricsprometheus.NewRecorder(nil)

	a, err := newApp(ctx, *c.rootCmd, appOptions{
		Jobs:            c.jobs,
		BulkScans:       !c.noBulkScans,
		MetricsRecorder: recorder,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	listenAddress := a.cfg.MetricsListenAddress
	if c.listenAddress != "" {
		listenAddress = c.listenAddress
	}
	if listenAddress == "" {
		return fmt.Errorf("a listen address is required, the other commands change the tasks through the daemon API")
	}

	if info, err := a.repo.GetDaemonInfo(ctx); err == nil {
		if _, err := reachDaemon(ctx, info.Address); err == nil {
			return fmt.Errorf("a daemon (pid %d) is already running on %q at %s", info.PID, c.rootCmd.DataDir, info.Address)
		}
		logger.Warningf("Replacing the daemon file of a daemon (pid %d) that is not running", info.PID)
	}

	ln, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("could not listen on %q: %w", listenAddress, err)
	}

	info := model.DaemonInfo{Address: clientAddress(ln.Addr()), PID: os.Getpid(), StartedAt: time.Now()}
	if err := a.repo.SaveDaemonInfo(ctx, info); err != nil {
		_ = ln.Close()
		return fmt.Errorf("could not publish the daemon: %w", err)
	}
	defer func() {
		if err := a.repo.DeleteDaemonInfo(context.Background()); err != nil {
			logger.Errorf("Could not remove the daemon file: %s", err)
		}
	}()

	srv, err := api.NewServer(api.ServerConfig{
		System:         a.system,
		MetricsHandler: recorder.Handler(),
		Logger:         logger,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("could not create API server: %w", err)
	}

	var g run.Group

	// Scheduler.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return a.system.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Task reloads.
	{
		ctx, cancel := context.WithCancel(ctx)
		hupC := make(chan os.Signal, 1)
		signal.Notify(hupC, syscall.SIGHUP)

		var tickC <-chan time.Time
		if c.reloadInterval > 0 {
			ticker := time.NewTicker(c.reloadInterval)
			defer ticker.Stop()
			tickC = ticker.C
		}

		g.Add(
			func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hupC:
						logger.Infof("SIGHUP received, reloading tasks")
					case <-tickC:
					}

					if err := a.system.Load(ctx); err != nil {
						logger.Errorf("Could not reload tasks: %s", err)
					}
				}
			},
			func(_ error) {
				signal.Stop(hupC)
				cancel()
			},
		)
	}

	// HTTP server.
	{
		e := srv.NewEcho()
		e.Listener = ln
		g.Add(
			func() error {
				logger.Infof("HTTP server listening on %s", ln.Addr())
				if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(ctx); err != nil {
					logger.Errorf("Could not shut down the HTTP server: %s", err)
				}
			},
		)
	}

	// Command context.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	logger.Infof("Daemon started with %d tasks", len(a.system.ListTaskIDs()))
	err = g.Run()
	logger.Infof("Daemon stopping, waiting for the running evaluations to be interrupted")

	return err
}

// clientAddress returns the URL the other processes reach the listener with.
func clientAddress(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}

	host := tcp.IP.String()
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}
