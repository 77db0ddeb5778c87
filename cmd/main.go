package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"plugbot/internal/api"
	"plugbot/internal/clock"
	"plugbot/internal/config"
	"plugbot/internal/dispatch"
	"plugbot/internal/ingest"
	"plugbot/internal/loader"
	"plugbot/internal/logging"
	"plugbot/internal/store"
	"plugbot/internal/telegram"
	"plugbot/internal/trace"
	"plugbot/pkg/bot"
	"plugbot/pkg/plugin"

	_ "plugbot/internal/plugins/about"
	_ "plugbot/internal/plugins/dice"
	_ "plugbot/internal/plugins/echo"
	_ "plugbot/internal/plugins/pluginmanager"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	traceCapacity = 256
	updateBuffer  = 64
)

type options struct {
	configPath string
	envFile    string
	memory     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	root := &cobra.Command{
		Use:           "plugbot",
		Short:         "Plugin based Telegram bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCmd.RunE,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	runCmd.Flags().BoolVar(&opts.memory, "memory", false, "keep plugin state in memory instead of SQLite")
	root.Flags().AddFlagSet(runCmd.Flags())
	root.AddCommand(runCmd)
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "plugins",
		Short: "List the plugins compiled into this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tCORE\tDESCRIPTION")
			for _, info := range plugin.List() {
				core := info.Namespace == plugin.NamespaceCore
				fmt.Fprintf(w, "%s\t%v\t%s\n", info.Path(), core, info.Description)
			}
			return w.Flush()
		},
	})
	return root
}

func configPath(opts *options) string {
	if _, err := os.Stat(opts.configPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return opts.configPath
}

func migrate(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Read(configPath(opts), opts.envFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.OpenSQLite(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	version, err := st.MigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	cmd.Printf("Database %s at schema version %d\n", cfg.Database.Path, version)
	return nil
}

func run(ctx context.Context, opts *options) error {
	path := configPath(opts)
	cfg, err := config.Load(path, opts.envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var st store.Store
	if opts.memory {
		logger.Warn("Using in-memory store, plugin state is lost on exit")
		st = store.NewMemory()
	} else {
		if st, err = store.OpenSQLite(cfg.Database.Path, logger); err != nil {
			return err
		}
	}
	defer st.Close()

	client := telegram.NewClient(cfg.Token, logger)
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to identify bot: %w", err)
	}
	logger.Info("Starting plugbot",
		zap.String("username", me.Username),
		zap.Int64("id", me.ID),
		zap.Bool("webhook", cfg.Webhook.Enabled))

	clk := clock.NewReal()
	superusers := config.NewSuperusers(cfg.Superusers)

	scheduler := cron.New()
	scheduler.Start()
	defer scheduler.Stop()

	registry := dispatch.NewRegistry()
	pctx := plugin.NewContext(client, st, superusers, logger, clk, me.Username, cfg.ErrorChat)
	pctx.SetCommands = cfg.SetCommands
	ld := loader.New(plugin.Global(), registry, st, pctx, logger,
		loader.WithScheduler(scheduler),
		loader.WithClock(clk))
	defer ld.Shutdown()

	if err := ld.LoadCorePlugins(ctx); err != nil {
		return err
	}
	if err := ld.LoadUserPlugins(ctx); err != nil {
		return err
	}
	if cfg.SetCommands {
		if err := ld.SyncCommands(ctx); err != nil {
			logger.Warn("Failed to publish commands", zap.Error(err))
		}
	}

	rec := trace.NewRecorder(traceCapacity)
	pipeline := dispatch.NewPipeline(superusers, ld, clk, client, logger)
	dispatcher := dispatch.NewDispatcher(registry, pipeline, client, logger,
		dispatch.WithTrace(rec),
		dispatch.WithErrorChat(cfg.ErrorChat),
		dispatch.WithWorkers(cfg.Workers),
		dispatch.WithObserver(ingest.NewRecorder(st, logger)))

	updates := make(chan *bot.Update, updateBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx, updates)
	})

	var apiOpts []api.Option
	if cfg.API.Token != "" {
		apiOpts = append(apiOpts, api.WithToken(cfg.API.Token))
	}

	if cfg.Webhook.Enabled {
		webhook := telegram.NewWebhookHandler(cfg.Webhook.Secret, updates, logger)
		if err := client.SetWebhook(ctx, cfg.Webhook.URL, cfg.Webhook.Secret); err != nil {
			return err
		}
		if cfg.Webhook.Listen == cfg.API.Listen {
			apiOpts = append(apiOpts, api.WithWebhook(webhook))
		} else {
			g.Go(func() error {
				return serve(gctx, &http.Server{Addr: cfg.Webhook.Listen, Handler: webhook}, logger)
			})
		}
	} else {
		if err := client.DeleteWebhook(ctx); err != nil {
			return err
		}
		poller := telegram.NewPoller(client, cfg.Polling.Timeout, clk, logger)
		g.Go(func() error {
			return poller.Run(gctx, updates)
		})
	}

	if cfg.API.Listen != "" {
		server := api.NewServer(cfg.API.Listen, ld, registry, rec, logger, apiOpts...)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, logger, func(next *config.Config) {
				superusers.Set(next.Superusers)
				logger.Info("Superusers updated", zap.Int64s("superusers", superusers.List()))
			})
		})
	}

	err = g.Wait()
	logger.Info("Shutting down gracefully...")
	return err
}

// serve runs srv until ctx is cancelled.
func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	logger.Info("Listening for webhook updates", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
