package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/config"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/proxy"
	"github.com/any-hub/offline-hub/internal/server"
	"github.com/any-hub/offline-hub/internal/server/routes"
	"github.com/any-hub/offline-hub/internal/version"
	"github.com/any-hub/offline-hub/internal/worker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["version"] = cfg.Worker.Version
		fields["cache_name"] = cfg.Worker.CacheName()
		fields["manifest"] = len(cfg.Worker.Manifest)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, opts.configPath, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offline-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFLINE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OFFLINE_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// serve 按“配置 → 磁盘缓存 → 宿主安装/激活 → Fiber server”顺序启动，
// ctx 取消后先停止接收请求，再在 ShutdownTimeout 内排空挂起的缓存写入。
func serve(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) error {
	origin, err := cfg.Worker.OriginURL()
	if err != nil {
		return err
	}
	upstream, err := cfg.Worker.UpstreamURL()
	if err != nil {
		return err
	}

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	fetcher := proxy.NewNetworkFetcher(server.NewUpstreamClient(cfg), origin, upstream)
	host, err := worker.NewHost(store, fetcher, logger)
	if err != nil {
		return err
	}

	workerOpts, err := worker.OptionsFromConfig(cfg.Worker)
	if err != nil {
		return err
	}
	startWorker(ctx, host, workerOpts, logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxy.NewForwarder(proxy.NewHandler(host, fetcher, origin, logger), logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return err
	}
	routes.RegisterWorkerRoutes(app, host, configReloader(configPath, origin))

	fields := logging.BaseFields("startup", configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["origin"] = origin.String()
	fields["upstream"] = upstream.String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	return listen(ctx, app, host, cfg, logger)
}

// startWorker 安装当前版本；失败时沿用磁盘上的旧版本缓存，都没有则所有请求直接透传。
func startWorker(ctx context.Context, host *worker.Host, opts worker.Options, logger *logrus.Logger) {
	_, err := host.Register(ctx, opts)
	if err == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"action":  "install",
		"version": opts.Version,
	}).WithError(err).Error("worker_install_failed")

	w, err := host.Resume(ctx, opts)
	if err != nil {
		logger.WithField("action", "resume").WithError(err).Warn("no_active_worker")
		return
	}
	logger.WithFields(logging.WorkerFields("resume", w.ID(), w.Version(), w.CacheName())).
		Warn("serving_previous_version")
}

func listen(ctx context.Context, app *fiber.App, host *worker.Host, cfg *config.Config, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Global.ShutdownTimeout.DurationValue())
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithField("action", "shutdown").WithError(err).Warn("fiber_shutdown_failed")
	}
	if err := host.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.WithField("action", "shutdown").Info("服务已停止")
	return nil
}

// configReloader 供 /-/worker/update 使用：重新加载配置文件，Origin 变化需要重启进程。
func configReloader(path string, origin *url.URL) routes.Reloader {
	return func(context.Context) (worker.Options, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return worker.Options{}, err
		}
		opts, err := worker.OptionsFromConfig(cfg.Worker)
		if err != nil {
			return worker.Options{}, err
		}
		if opts.Origin.String() != origin.String() {
			return worker.Options{}, fmt.Errorf("worker origin changed from %s to %s, restart required", origin, opts.Origin)
		}
		return opts, nil
	}
}
