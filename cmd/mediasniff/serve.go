package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mediasniff/internal/api"
	"mediasniff/internal/aria2"
	"mediasniff/internal/browser"
	"mediasniff/internal/catalog"
	"mediasniff/internal/cdp"
	"mediasniff/internal/config"
	"mediasniff/internal/logger"
	"mediasniff/internal/metrics"
	"mediasniff/internal/notify"
	"mediasniff/internal/service"
	"mediasniff/internal/storage"
	"mediasniff/pkg/model"
)

type serveFlags struct {
	listen      string
	devtools    string
	dbPath      string
	downloadDir string
	launch      bool
	headless    bool
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg))
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.listen, "listen", "", "API listen address")
	fs.StringVar(&f.devtools, "devtools", "", "Chrome DevTools HTTP endpoint")
	fs.StringVar(&f.dbPath, "db", "", "settings database path")
	fs.StringVar(&f.downloadDir, "download-dir", "", "directory for native downloads")
	fs.BoolVar(&f.launch, "launch", false, "launch Chrome with remote debugging")
	fs.BoolVar(&f.headless, "headless", false, "launch Chrome headless")
	return cmd
}

// apply 命令行参数覆盖配置文件与环境变量
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Listen = f.listen
	}
	if fs.Changed("devtools") {
		cfg.DevToolsURL = f.devtools
	}
	if fs.Changed("db") {
		cfg.DBPath = f.dbPath
	}
	if fs.Changed("download-dir") {
		cfg.DownloadDir = f.downloadDir
	}
	if fs.Changed("launch") {
		cfg.Launch.Enabled = f.launch
	}
	if fs.Changed("headless") {
		cfg.Launch.Headless = f.headless
	}
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer storage.Close(db)
	settings := storage.NewSettingsRepo(db)
	history := storage.NewDeliveryRepo(db)
	if cfg.HistoryRetention > 0 {
		if n, err := history.CleanupOlderThan(cfg.HistoryRetention); err != nil {
			log.Warn("清理投递历史失败", "error", err)
		} else if n > 0 {
			log.Info("已清理过期投递历史", "removed", n)
		}
	}

	if cfg.Launch.Enabled {
		b, err := browser.Start(ctx, browser.Options{
			ExecPath:            cfg.Launch.ExecPath,
			UserDataDir:         cfg.Launch.UserDataDir,
			RemoteDebuggingPort: cfg.Launch.Port,
			Headless:            cfg.Launch.Headless,
			Args:                cfg.Launch.Args,
		}, log)
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		defer b.Stop(2 * time.Second)
		cfg.DevToolsURL = b.DevToolsURL
	}

	hub := notify.NewHub(cfg.FallbackOrigins, logger.Component(log, "notify"))
	hub.OnResult(metrics.RecordNotification)

	var store *catalog.Store
	store = catalog.New(
		catalog.WithPublisher(hub),
		catalog.WithLogger(logger.Component(log, "catalog")),
		catalog.WithHooks(catalog.Hooks{
			OnInsert: func(kind model.StreamKind) {
				metrics.RecordObserved(kind)
				metrics.SetCatalogSize(store.Len())
			},
			OnHeaders: metrics.RecordHeaders,
			OnPurge: func(n int) {
				metrics.RecordEvictions(n)
				metrics.SetCatalogSize(store.Len())
			},
			OnClear: func() { metrics.SetCatalogSize(0) },
		}),
	)
	sweeper := catalog.NewSweeper(store, cfg.SweepInterval, cfg.Retention, logger.Component(log, "sweeper"))
	watcher := cdp.NewWatcher(cfg.DevToolsURL, store, log)

	svc := service.New(service.Config{
		Catalog:  store,
		Host:     cdp.NewHost(cfg.DevToolsURL, cfg.DownloadDir, log),
		Settings: settings,
		Agent:    aria2.New(nil),
		Notifier: hub,
		History:  history,
		Logger:   log,
	})
	server := api.New(api.Config{
		Messages:  svc,
		Settings:  settings,
		History:   history,
		Observe:   hub.Handler(cfg.AllowedOrigins),
		RateLimit: cfg.RateLimit,
		Status: map[string]api.Counter{
			"records":     store,
			"observers":   hub,
			"watchedTabs": watcher,
		},
		Logger: log,
	})

	log.Info("mediasniff 启动", "listen", cfg.Listen, "devtools", cfg.DevToolsURL)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.Listen) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	err = g.Wait()
	log.Info("mediasniff 已退出")
	return err
}
