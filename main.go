package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/cache"
	"github.com/helseflora/floracache/internal/config"
	"github.com/helseflora/floracache/internal/logging"
	"github.com/helseflora/floracache/internal/metrics"
	"github.com/helseflora/floracache/internal/record"
	"github.com/helseflora/floracache/internal/server"
	"github.com/helseflora/floracache/internal/server/routes"
	"github.com/helseflora/floracache/internal/upstream"
	"github.com/helseflora/floracache/internal/version"
)

const metricsNamespace = "floracache"

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
		fields["namespace"] = cfg.Global.Namespace
		fields["backends"] = cfg.BackendSummary()
		fields["upstream"] = cfg.Global.HasUpstream()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 存储后端 → 缓存协调器 → 上游客户端 → Fiber server，
	// 所有请求共享同一个协调器与指标注册表。
	app, cleanup, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer cleanup()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["namespace"] = cfg.Global.Namespace
	fields["listen_port"] = cfg.Global.ListenPort
	fields["backends"] = cfg.BackendSummary()
	fields["upstream"] = cfg.Global.HasUpstream()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 根据配置装配全部组件，返回的 cleanup 负责关闭存储连接。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, func(), error) {
	backends, err := server.OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := backends.Close(); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("backend_close_failed")
		}
	}

	m := metrics.New(metricsNamespace)
	coord, err := cache.New(cache.Options{
		Namespace: cfg.Global.Namespace,
		Metadata:  backends.Metadata,
		Blobs:     backends.Blobs,
		Logger:    logger,
		Observer:  m,
		Schema: record.Schema{
			ImageField:  cfg.Global.ImageField,
			MarkerField: cfg.Global.MarkerField,
		},
		Policy: cache.TTLPolicy{
			Default: cfg.Global.DefaultTTL.DurationValue(),
			User:    cfg.Global.UserTTL.DurationValue(),
			UserKey: cache.UserCacheName,
		},
		Concurrency: cfg.Global.BlobConcurrency,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	client, err := upstream.New(upstream.Options{
		BaseURL:     cfg.Global.UpstreamBaseURL,
		APIKey:      cfg.Global.UpstreamKey,
		HTTPClient:  upstream.NewHTTPClient(cfg.Global.UpstreamTimeout.DurationValue()),
		Coordinator: coord,
		Logger:      logger,
		Recorder:    m,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Coordinator: coord,
		Upstream:    client,
		Recorder:    m,
		ListenPort:  cfg.Global.ListenPort,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	routes.RegisterDiagnosticRoutes(app, routes.DiagnosticsOptions{
		Version:  version.Full(),
		Backends: cfg.BackendSummary(),
		Policy:   coord.Policy(),
		Metrics:  m.Handler(),
	})
	return app, cleanup, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("floracache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 FLORACACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("FLORACACHE_CONFIG")
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

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
