package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/watchparty/internal/adapters/gateway"
	router "github.com/dkeye/watchparty/internal/adapters/http"
	"github.com/dkeye/watchparty/internal/adapters/store"
	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/config"
	"github.com/dkeye/watchparty/internal/core"
)

const shutdownTimeout = 15 * time.Second

var (
	cfgFile string
	port    int
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Watch-party room coordination server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port, overrides the config")
}

func setupLogger(mode, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// openGateway returns the persistence collaborator and, for database
// drivers, the store so it can be closed and served under /api/db.
func openGateway(cfg config.GatewayConfig) (core.Gateway, *store.Store, error) {
	switch cfg.Driver {
	case config.DriverHTTP:
		return gateway.NewClient(cfg.BaseURL, cfg.Timeout), nil, nil
	case config.DriverSQLite, config.DriverPostgres:
		st, err := store.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}

func run(cfg *config.Config) error {
	setupLogger(cfg.Mode, cfg.LogLevel)

	gw, st, err := openGateway(cfg.Gateway)
	if err != nil {
		return err
	}

	o := orch.New(orch.Options{
		Gateway:        gw,
		Registry:       app.NewRegistry(),
		Rooms:          app.NewRoomManager(),
		Policy:         app.PolicyByName(cfg.Backpressure),
		GatewayTimeout: cfg.Gateway.Timeout,
		GraceWindow:    cfg.Rooms.GraceWindow,
		ReservedRooms:  cfg.Rooms.Reserved,
		ChatMaxLength:  cfg.Chat.MaxLength,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db core.Gateway
	if st != nil {
		db = st
	}
	r := router.SetupRouter(ctx, cfg, o, db)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Str("gateway", cfg.Gateway.Driver).Msg("watchparty server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("module", "main").Msg("server error")
			cancel()
		}
	}()

	ops := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
		"coordinator": func(ctx context.Context) error {
			defer cancel()
			err := o.Shutdown(ctx)
			// The store closes only after every connection has left.
			if st != nil {
				err = errors.Join(err, st.Close())
			}
			return err
		},
	}

	exitCode := <-gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, ops)
	log.Info().Str("module", "main").Int("code", exitCode).Msg("server exited")
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with code %d", exitCode)
	}
	return nil
}

func main() {
	setupLogger("", "info")
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("server failed")
		os.Exit(1)
	}
}
