// dynsql runs dynamic SQL cursor scenarios and serves cursor sessions over
// gRPC and HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/dynsql"
	"github.com/SimonWaldherr/dynsql/internal/config"
	"github.com/SimonWaldherr/dynsql/internal/logger"
	"github.com/SimonWaldherr/dynsql/internal/script"
	"github.com/SimonWaldherr/dynsql/internal/server"
)

var (
	version = "0.1.0"
	cfgFile string
	v       = viper.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dynsql",
		Short: "dynsql - dynamic SQL cursors for database/sql",
		Long: `dynsql provides DBMS_SQL style cursors (parse, bind, define, execute,
fetch) on top of any database/sql driver.

Run cursor scenarios against an in-memory SQLite database:
  dynsql run testdata/bulk.yaml

Serve cursor sessions for a PostgreSQL database:
  dynsql serve --driver pgx --dsn postgres://localhost/app`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path")
	pf.String("driver", "", "database/sql driver (sqlite, pgx)")
	pf.String("dsn", "", "data source name")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("engine.driver", pf.Lookup("driver"))
	_ = v.BindPFlag("engine.dsn", pf.Lookup("dsn"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dynsql %s\n", version)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run script.yaml...",
		Short: "Run cursor scenarios, each in a fresh session",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScripts,
	}
	runCmd.Flags().BoolP("quiet", "q", false, "do not print step results")
	rootCmd.AddCommand(runCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cursor sessions over gRPC and HTTP",
		RunE:  serve,
	}
	serveCmd.Flags().String("http", "", "HTTP listen address (empty keeps the configured one)")
	serveCmd.Flags().String("grpc", "", "gRPC listen address (empty keeps the configured one)")
	_ = v.BindPFlag("server.http", serveCmd.Flags().Lookup("http"))
	_ = v.BindPFlag("server.grpc", serveCmd.Flags().Lookup("grpc"))
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadViper(v, cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, log, nil
}

func sessionOptions(cfg *config.Config, log *logger.Logger) []dynsql.Option {
	return []dynsql.Option{
		dynsql.WithPlaceholder(cfg.Placeholder()),
		dynsql.WithMaxCursors(cfg.Cursor.MaxCursors),
		dynsql.WithFetchBatch(cfg.Cursor.FetchBatch),
		dynsql.WithLogger(log),
	}
}

func runScripts(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()

	ctx := cmd.Context()
	failed := 0
	for _, path := range args {
		sc, err := script.Load(path)
		if err != nil {
			return err
		}
		w := out
		if quiet {
			w = nil
		}
		if err := runOne(ctx, cfg, log, sc, w); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n", err)
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d steps)\n", sc.Name, len(sc.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(args))
	}
	return nil
}

func runOne(ctx context.Context, cfg *config.Config, log *logger.Logger, sc *script.Script, out io.Writer) error {
	s, err := dynsql.Open(ctx, cfg.Engine.Driver, cfg.Engine.DSN, sessionOptions(cfg, log.With("script", sc.Name))...)
	if err != nil {
		return err
	}
	defer s.Close()
	return script.NewRunner(s, out, log).Run(ctx, sc)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv := server.New(server.Options{
		Driver:      cfg.Engine.Driver,
		DSN:         cfg.Engine.DSN,
		Placeholder: cfg.Placeholder(),
		MaxCursors:  cfg.Cursor.MaxCursors,
		FetchBatch:  cfg.Cursor.FetchBatch,
		SessionIdle: cfg.Server.SessionIdle,
		Log:         log,
	})
	defer srv.Close()
	if err := srv.StartReaper(cfg.Server.ReapSchedule); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 2)

	if cfg.Server.GRPC != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPC)
		if err != nil {
			return fmt.Errorf("gRPC listen: %w", err)
		}
		gs := grpc.NewServer()
		srv.RegisterGRPC(gs)
		defer gs.GracefulStop()
		log.Info("gRPC listening", "addr", cfg.Server.GRPC)
		go func() { errc <- gs.Serve(lis) }()
	}
	if cfg.Server.HTTP != "" {
		hs := &http.Server{Addr: cfg.Server.HTTP, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}()
		log.Info("HTTP listening", "addr", cfg.Server.HTTP)
		go func() { errc <- hs.ListenAndServe() }()
	}
	if cfg.Server.GRPC == "" && cfg.Server.HTTP == "" {
		return fmt.Errorf("neither server.http nor server.grpc is set")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errc:
		return err
	}
}
