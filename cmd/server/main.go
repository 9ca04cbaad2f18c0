package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/memory-game/internal/api"
	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/database"
	"github.com/wfunc/memory-game/internal/errors"
	"github.com/wfunc/memory-game/internal/logger"
	"go.uber.org/zap"
)

// 版本信息，构建时通过 -ldflags 注入
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Server 进程级服务器：HTTP服务加上路由器持有的后台任务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	router     *api.Router
	httpServer *http.Server

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func main() {
	var (
		configPath  = flag.String("config", "", "指定配置文件路径")
		showVersion = flag.Bool("version", false, "打印版本信息后退出")
		showHelp    = flag.Bool("help", false, "打印帮助信息后退出")
	)
	flag.Parse()

	switch {
	case *showVersion:
		printVersion()
		return
	case *showHelp:
		printHelp()
		return
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("读取配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	setupSystem(&cfg.System)
	printStartInfo(cfg)

	server := &Server{
		cfg:        cfg,
		logger:     logger.WithModule("server"),
		shutdownCh: make(chan struct{}),
	}

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已退出")
}

// Start 初始化数据库与路由器，然后拉起HTTP服务
func (s *Server) Start() error {
	s.logger.Info("正在启动翻牌记忆对局服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	if err := s.initDatabase(); err != nil {
		return err
	}

	// 路由器内部创建认证服务、对局服务与WebSocket中心
	if s.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = api.NewRouter(database.GetDB(), s.cfg, s.logger)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务器监听中", zap.String("address", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
			close(s.shutdownCh)
		}
	}()

	// 配置热更新只替换快照，日志级别等需重启生效
	config.Watch(func(newCfg *config.Config) {
		s.cfg = newCfg
		s.logger.Info("配置重新加载完成")
	})

	s.logger.Info("服务器启动成功", zap.String("http", addr))
	return nil
}

func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "自动迁移数据库失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

// WaitForShutdown 阻塞到收到退出信号或HTTP服务异常退出
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		close(s.shutdownCh)
	case <-s.shutdownCh:
		s.logger.Warn("服务异常，触发关闭")
	}
}

// Shutdown 先停HTTP，再停路由器的后台任务，最后关数据库
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务器关闭异常", zap.Error(err))
		}
	}

	// 停止对局服务后台任务并保存活跃会话
	if s.router != nil {
		s.router.Shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
		s.logger.Info("后台任务已全部退出")
	case <-shutdownCtx.Done():
		s.logger.Warn("等待后台任务超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("刷新日志缓冲失败: %v\n", err)
	}
	return nil
}

// setupSystem 设置时区、GOMAXPROCS和文件描述符限制
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err == nil {
			time.Local = loc
		}
	}

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 文件描述符上限放到软限制允许的最大值
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err == nil {
		limit.Cur = limit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit)
	}
}

func printVersion() {
	fmt.Println("翻牌记忆对局服务器")
	fmt.Printf("版本: %s (%s)\n", Version, GitCommit)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("运行环境: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printHelp() {
	fmt.Println("翻牌记忆对局服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  memory-game-server [选项]")
	fmt.Println()
	fmt.Println("命令行选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("相关环境变量:")
	fmt.Println("  MEMORY_GAME_ENV          运行环境 (development/production/test)")
	fmt.Println("  MEMORY_GAME_CONFIG       配置文件路径")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  memory-game-server -config=/path/to/config.yaml")
	fmt.Println("  memory-game-server -version")
}

func printStartInfo(cfg *config.Config) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║    __  __                                                 ║
║   |  \/  | ___ _ __ ___   ___  _ __ _   _                 ║
║   | |\/| |/ _ \ '_ ` + "`" + ` _ \ / _ \| '__| | | |                ║
║   | |  | |  __/ | | | | | (_) | |  | |_| |                ║
║   |_|  |_|\___|_| |_| |_|\___/|_|   \__, |                ║
║                                     |___/                 ║
║                                                           ║
║                  翻牌记忆对局后端服务器                   ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("版本: %s | 运行模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("监听地址: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
