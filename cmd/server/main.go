package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/echechess/internal/adapter"
	"github.com/wfunc/echechess/internal/api"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *adapter.Runtime
	http    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("服务器初始化失败", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 按部署模式装配组件，集群模式连不上存储或总线时直接失败
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := adapter.New(cfg, game.NewBookkeeper())
	if err != nil {
		return nil, err
	}

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(rt, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		logger:  logger.With(zap.String("node_id", cfg.Node.ID)),
		runtime: rt,
		http: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:      router.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 1),
	}, nil
}

// Start 启动节点组件和HTTP服务
func (s *Server) Start() error {
	s.logger.Info("正在启动对局协调服务",
		zap.String("version", Version),
		zap.String("mode", string(s.cfg.Mode)))

	if err := s.runtime.Start(s.ctx); err != nil {
		return errors.Wrap(err, errors.ErrStartupConfiguration, "启动节点组件失败")
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrStartupConfiguration, "监听端口失败")
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()

	// 日志级别可热更新，端点与模式启动后不变
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
	})

	s.logger.Info("服务器启动成功", zap.String("http", s.http.Addr))
	return nil
}

// WaitForShutdown 等待退出信号或HTTP服务异常
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case err := <-s.errCh:
		s.logger.Error("HTTP服务异常退出", zap.Error(err))
	}
}

// Shutdown 先停HTTP，再停监听器和连接
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	s.cancel()

	if err := s.runtime.Close(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "关闭组件失败")
	}
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("echechess 对局协调服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("echechess 对局协调服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  echechess-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  ECHECHESS_MODE            部署模式 (independent/dependent)")
	fmt.Println("  ECHECHESS_BUS_HOST        消息总线地址")
	fmt.Println("  ECHECHESS_DATABASE_HOST   共享存储地址")
	fmt.Println("  ECHECHESS_SESSION_SECRET  会话令牌密钥")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  echechess-server -config=/path/to/config.yaml")
	fmt.Println("  echechess-server -version")
}
