package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/nuget-hub/internal/config"
	"github.com/any-hub/nuget-hub/internal/content"
	"github.com/any-hub/nuget-hub/internal/index"
	"github.com/any-hub/nuget-hub/internal/license"
	"github.com/any-hub/nuget-hub/internal/logging"
	"github.com/any-hub/nuget-hub/internal/mirror"
	"github.com/any-hub/nuget-hub/internal/server"
	"github.com/any-hub/nuget-hub/internal/server/routes"
	"github.com/any-hub/nuget-hub/internal/storage"
	"github.com/any-hub/nuget-hub/internal/version"
)

// configEnvVar 在未传入 --config 时提供配置文件路径。
const configEnvVar = "NUGET_HUB_CONFIG"

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

	// 黑名单模式在 --check-config 阶段同样需要编译，非法正则应尽早暴露。
	classifier, err := license.New(license.Config{
		Enabled:         cfg.LicenseFilter.Enabled,
		BlockedPatterns: cfg.LicenseFilter.BlockedPatterns,
	}, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "编译许可证黑名单失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["backends"] = cfg.Summary()
		fields["mirror"] = cfg.Mirror.Enabled
		fields["blocked_patterns"] = classifier.PatternCount()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, cleanup, err := buildApp(context.Background(), cfg, classifier, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer cleanup()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["backends"] = cfg.Summary()
	fields["mirror"] = cfg.Mirror.Enabled
	fields["license_filter"] = classifier.Enabled()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("nuget-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 NUGET_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvVar)
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

// buildApp 按“存储 → 索引 → 镜像 → 内容编排 → Fiber”的顺序组装服务，
// 返回的 cleanup 负责关闭索引连接。
func buildApp(ctx context.Context, cfg *config.Config, classifier *license.Classifier, logger *logrus.Logger) (*fiber.App, func(), error) {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化存储失败: %w", err)
	}
	packages := storage.NewPackageStorage(store)

	idx, err := openIndex(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化索引失败: %w", err)
	}
	cleanup := func() {
		if err := idx.Close(); err != nil {
			logger.WithError(err).Warn("index_close_failed")
		}
	}

	var upstream mirror.Upstream
	if cfg.Mirror.Enabled {
		client, err := mirror.NewClient(mirror.ClientConfig{
			Upstream:        cfg.Mirror.Upstream,
			Timeout:         cfg.Global.UpstreamTimeout.DurationValue(),
			DownloadTimeout: cfg.Mirror.PackageDownloadTimeout.DurationValue(),
			MaxRetries:      cfg.Global.MaxRetries,
			InitialBackoff:  cfg.Global.InitialBackoff.DurationValue(),
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("初始化上游客户端失败: %w", err)
		}
		upstream = client
	}

	mirrorSvc, err := mirror.NewService(cfg.Mirror.Enabled, upstream, idx, packages, logger,
		mirror.WithFetchTimeout(cfg.Mirror.PackageDownloadTimeout.DurationValue()))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	contentSvc, err := content.New(mirrorSvc, idx, packages, classifier, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	status := routes.StatusInfo{
		Version:              version.Full(),
		MirrorEnabled:        cfg.Mirror.Enabled,
		LicenseFilterEnabled: classifier.Enabled(),
		BlockedPatterns:      classifier.PatternCount(),
		Storage:              cfg.Storage.Type,
		Database:             cfg.Database.Type,
	}
	if cfg.Mirror.Enabled {
		status.Upstream = cfg.Mirror.Upstream
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: cfg.Global.ListenPort,
		Routes: []server.RouteRegistrar{
			routes.RegisterStatusRoutes(status),
			routes.RegisterPackageRoutes(contentSvc, logger),
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return app, cleanup, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageAzureBlob:
		return storage.NewAzureStore(ctx, storage.AzureConfig{
			ConnectionString: cfg.ConnectionString,
			ContainerName:    cfg.ContainerName,
		})
	default:
		return storage.NewFileStore(cfg.Path)
	}
}

func openIndex(ctx context.Context, cfg config.DatabaseConfig) (index.Index, error) {
	switch cfg.Type {
	case config.DatabasePostgres:
		return index.OpenPostgres(ctx, cfg.DSN)
	default:
		return index.NewMemory(), nil
	}
}

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
