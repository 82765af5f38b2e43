package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/api"
	"github.com/char5742/pedald/internal/config"
	"github.com/char5742/pedald/internal/features"
	"github.com/char5742/pedald/internal/hardwaremap"
	"github.com/char5742/pedald/internal/inject"
	"github.com/char5742/pedald/internal/logging"
	"github.com/char5742/pedald/internal/metrics"
	"github.com/char5742/pedald/internal/profile"
)

func main() {
	// コマンドライン引数の解析
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	profileArg := flag.String("profile", "", "起動時に適用するプロファイルの名前またはパス")
	listen := flag.String("listen", "", "APIサーバーの待ち受けアドレス (設定ファイルより優先)")
	dryRun := flag.Bool("dry-run", false, "キーを送出せずにログへ記録する")
	openConfig := flag.Bool("open-config", false, "設定フォルダを開いて終了する")
	flag.Parse()

	// デフォルト設定ファイルパスの設定
	cfgPath := *configPath
	if cfgPath == "" {
		configDir, err := config.GetDefaultConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "設定ディレクトリを特定できません: %v\n", err)
			os.Exit(1)
		}
		cfgPath = filepath.Join(configDir, config.FileName)
	}

	// 設定ファイルの読み込み
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定ファイルの読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	root := logging.New(cfg.Log)
	logger := logging.Subsystem(&root, "main")
	logger.Info().Str("config", cfgPath).Msg("loaded configuration")

	if *openConfig {
		dir := cfg.StorageDir(cfgPath)
		if err := browser.OpenFile(dir); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to open config folder")
		}
		return
	}

	if err := run(cfg, cfgPath, *profileArg, *dryRun, &root); err != nil {
		logger.Fatal().Err(err).Msg("pedald exited")
	}
}

func run(cfg *config.Config, cfgPath, profileArg string, dryRun bool, logger *zerolog.Logger) error {
	injector, closeInjector := newInjector(cfg, dryRun, logger)
	defer closeInjector()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storageDir := cfg.StorageDir(cfgPath)
	scanner := features.Scanner{
		SysfsDir: cfg.Monitor.SysfsDir,
		DevDir:   cfg.Monitor.HidrawDir,
		Vendor:   cfg.Pedal.VendorID,
		Product:  cfg.Pedal.ProductID,
	}

	service, err := api.NewPedalService(api.Options{
		Scan:           scanner.Scan,
		Injector:       injector,
		HardwareMap:    hardwaremap.New(cfg.HardwareMapPath(cfgPath), logger),
		Profiles:       profile.NewDir(storageDir, cfg.Storage.DefaultProfile, logger),
		InitialProfile: profileArg,
		ReportOffset:   cfg.Pedal.ReportOffset,
		Debounce:       cfg.Pedal.Debounce,
		CaptureGuard:   cfg.Capture.Guard,
		NewInput: func(sink features.CaptureSink) api.CaptureInput {
			return features.NewInputCapture(cfg.Monitor.InputDir, cfg.Capture.Grab, sink, logger)
		},
		Monitor: &features.MonitorOptions{
			WatchDir:     cfg.Monitor.HidrawDir,
			RescanDelay:  cfg.Monitor.RescanDelay,
			PollInterval: cfg.Monitor.PollInterval,
		},
		Metrics: metrics.New(reg),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("サービスの作成に失敗しました: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("サービスの起動に失敗しました: %w", err)
	}
	defer service.Stop()

	server := api.NewServer(service, cfg.API.Listen, reg, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("APIサーバーの起動に失敗しました: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown failed")
	}
	return nil
}

// newInjector は仮想キーボードを作る。作れない場合はドライランに切り替える
func newInjector(cfg *config.Config, dryRun bool, logger *zerolog.Logger) (inject.Injector, func()) {
	if !dryRun {
		u, err := inject.NewUinput(cfg.Inject.UinputPath, cfg.Inject.DeviceName, logger)
		if err == nil {
			return u, func() {
				if err := u.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close virtual keyboard")
				}
			}
		}
		logger.Error().Err(err).Str("path", cfg.Inject.UinputPath).Msg("virtual keyboard unavailable, falling back to dry-run")
	}
	return inject.NewRecorder(logger), func() {}
}
