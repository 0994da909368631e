package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/logrusadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/samjbobb/exportbench/config"
	"github.com/samjbobb/exportbench/export/runner"
	"github.com/samjbobb/exportbench/export/seed"
	"github.com/samjbobb/exportbench/export/sink"
	"github.com/samjbobb/exportbench/export/source"
	"github.com/sirupsen/logrus"
)

type Supervisor struct{}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Run seeds when needed and measures every strategy.
func (s *Supervisor) Run(ctx context.Context, configFile string) error {
	ctx, stop := withSignals(ctx)
	defer stop()

	r, cfg, closeSource, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer closeSource()

	if _, err := r.Run(ctx); err != nil {
		return err
	}
	if cfg.Metrics.PushGateway != "" {
		return r.Metrics().Push(ctx, cfg.Metrics.PushGateway, cfg.Metrics.Job)
	}
	return nil
}

// Seed only makes sure the data table is populated.
func (s *Supervisor) Seed(ctx context.Context, configFile string) error {
	ctx, stop := withSignals(ctx)
	defer stop()

	r, _, closeSource, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer closeSource()
	return r.EnsureSeeded(ctx)
}

// Export measures a single strategy by name.
func (s *Supervisor) Export(ctx context.Context, configFile string, name string) error {
	ctx, stop := withSignals(ctx)
	defer stop()

	r, _, closeSource, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer closeSource()
	if err := r.EnsureSeeded(ctx); err != nil {
		return err
	}
	_, err = r.RunOne(ctx, name)
	return err
}

// withSignals cancels ctx on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			logrus.Warnln("interrupted, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}

func setup(ctx context.Context, configFile string) (*runner.Runner, *config.Config, func(), error) {
	cfg, err := config.GetConf(config.DefaultConfig, configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("getConf error: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("validate config error: %w", err)
	}

	initLogger(cfg.Logger)

	src, err := openSource(ctx, cfg.Data.DataConnection)
	if err != nil {
		return nil, nil, nil, err
	}
	closeSource := func() {
		if err := src.Close(); err != nil {
			logrus.WithError(err).Warnln("could not close data source")
		}
	}
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		closeSource()
		return nil, nil, nil, &sink.SinkError{Op: "mkdir", Path: cfg.Export.OutputDir, Err: err}
	}

	r := runner.NewRunner(src, sink.DirOpener(cfg.Export.OutputDir), runner.WithSeed(seed.Options{
		Rows:      cfg.Seed.Rows,
		BatchSize: cfg.Seed.BatchSize,
	}))
	return r, cfg, closeSource, nil
}

type closableSource interface {
	runner.Source
	Close() error
}

func openSource(ctx context.Context, cfg config.DataConnectionCfg) (closableSource, error) {
	var (
		src closableSource
		err error
	)
	switch cfg.Driver {
	case "", "postgres":
		src, err = initPostgres(ctx, cfg.ConnectionString)
	case "sqlite":
		src, err = source.OpenSQL(ctx, source.SQLite, cfg.ConnectionString)
	case "snowflake":
		src, err = source.OpenSQL(ctx, source.Snowflake, snowflakeDSN(cfg.ConnectionString))
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logrus.WithField("driver", cfg.Driver).Infoln("connected to data source")
	return src, nil
}

// initLogger sets up logrus from the config. Logs go to stderr, the report owns stdout.
func initLogger(cfg config.LoggerCfg) {
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetReportCaller(true)
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnln("invalid log level in config", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
}

// initPostgres connects the pgx pool and opens the database/sql handle used by the raw query path.
func initPostgres(ctx context.Context, connString string) (*source.Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres config error: %w", err)
	}
	poolConfig.ConnConfig.Logger = logrusadapter.NewLogger(logrus.StandardLogger())
	poolConfig.ConnConfig.LogLevel = pgx.LogLevelWarn
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, &source.DataSourceError{Op: "connect", Err: err}
	}
	raw := stdlib.OpenDB(*poolConfig.ConnConfig)
	if err := raw.PingContext(ctx); err != nil {
		pool.Close()
		raw.Close()
		return nil, &source.DataSourceError{Op: "connect", Err: err}
	}
	return source.NewPostgres(pool, raw), nil
}

// snowflakeDSN keeps the session alive through long reads.
func snowflakeDSN(conn string) string {
	joinChar := "?"
	if strings.Contains(conn, "?") {
		joinChar = "&"
	}
	return fmt.Sprintf("%s%sclient_session_keep_alive=true", conn, joinChar)
}
