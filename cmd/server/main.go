package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/chain"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/github"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/logic"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
	"github.com/lucci-xyz/bounty-sub003/internal/router"
	"github.com/lucci-xyz/bounty-sub003/internal/task"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "bounty-server",
	Short:         "GitHub bounty escrow service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconcile pass against the escrow contracts and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reconcileOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化日志、数据库和链上客户端
func bootstrap() (*config.Config, *gorm.DB, *chain.Manager, error) {
	// 加载配置
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	// 初始化各网络的链上客户端
	chainManager, err := chain.NewManager(cfg.Chain)
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, db, chainManager, nil
}

func serve() error {
	cfg, db, chainManager, err := bootstrap()
	if err != nil {
		return err
	}
	defer chainManager.Close()
	defer logger.Sync()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, chainManager, github.NewClient(cfg.Github), cfg)

	// 启动定时任务
	syncer := logic.NewBountyLogic(repository.NewBountyRepository(db), reconcile.NewService(chainManager), chainManager)
	manager, err := task.Start(db, syncer, cfg)
	if err != nil {
		return fmt.Errorf("failed to start task manager: %w", err)
	}
	defer manager.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func reconcileOnce(ctx context.Context) error {
	cfg, db, chainManager, err := bootstrap()
	if err != nil {
		return err
	}
	defer chainManager.Close()
	defer logger.Sync()

	bounties := repository.NewBountyRepository(db)
	syncer := logic.NewBountyLogic(bounties, reconcile.NewService(chainManager), chainManager)
	report, err := task.NewBountyReconcileJob(bounties, syncer, cfg.Task).RunOnce(ctx)
	if err != nil {
		return err
	}

	logger.Info("Reconcile finished: scanned %d, advanced %d, failed %d", report.Scanned, report.Advanced, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d bounties could not be reconciled", report.Failed)
	}
	return nil
}
