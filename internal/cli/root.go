// Package cli implements the poorlock command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nozo-moto/poorlock"
)

const (
	exitOK     = 0
	exitError  = 1
	exitLocked = 2
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfg     Config
	logger  *slog.Logger
	backend *backend
	locker  *poorlock.Locker
	metrics *http.Server
}

// Run executes the command line and returns the process exit code.
// Lock contention (already locked, already unlocked, timeout) exits with 2,
// a failed child of "run" exits with the child's code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{v: viper.New()}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "poorlock:", err)
	}
	return exitCode(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "poorlock",
		Short: "Mutual exclusion on top of a conditional-write store",
		Long: `poorlock takes a lock by racing to write a marker record into a
store with atomic conditional writes (Redis, MySQL, Memcache, DynamoDB).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	setupFlags(root)

	root.AddCommand(
		a.lockCommand(),
		a.secondCommand(),
		a.unlockCommand(),
		a.waitCommand(),
		a.runCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	initEnv(a.v)
	cfg, err := loadConfig(a.v, cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []poorlock.Option{
		poorlock.WithPollDelay(cfg.PollDelay),
		poorlock.WithBackoff(cfg.BackoffMult, cfg.BackoffMax),
		poorlock.WithLogger(a.logger),
	}
	if cfg.MetricsAddr != "" {
		m, err := a.serveMetrics(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		opts = append(opts, poorlock.WithMetrics(m))
	}

	a.backend, err = openBackend(cmd.Context(), cfg, a.logger)
	if err != nil {
		return err
	}
	a.locker = poorlock.New(a.backend.store, opts...)
	a.logger.Debug("backend ready", "backend", cfg.Backend)
	return nil
}

func (a *app) serveMetrics(addr string) (poorlock.Metrics, error) {
	reg := prometheus.NewRegistry()
	m, err := poorlock.NewPromMetrics("poorlock", reg)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return m, nil
}

func (a *app) close() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	if a.backend != nil {
		return a.backend.close()
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr) && exitErr.ExitCode() > 0:
		return exitErr.ExitCode()
	case poorlock.IsAlreadyLocked(err), poorlock.IsAlreadyUnlocked(err), poorlock.IsTimeout(err):
		return exitLocked
	}
	return exitError
}
