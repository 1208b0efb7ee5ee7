package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/config"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/logger"
)

const (
	appName    = "mijo-gateway"
	appVersion = "0.1.0"
)

func main() {
	// .env 仅用于本地开发, 缺失时静默跳过
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "mijo",
		Short: "Mijo Gateway — 群聊上下文感知 AI 网关",
		Long:  "Mijo Gateway — 多人聊天室的上下文感知对话网关, 提供消息记忆/语义检索/媒体理解/生成式回复",
		RunE:  runServe,
	}

	// --- Subcommands ---

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动网关服务 (HTTP API + 内嵌工作池)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "启动独立媒体工作进程 (需共享缓存队列)",
		RunE:  runWorker,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── Gateway Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Mijo Gateway",
		zap.String("version", appVersion),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
	return nil
}

// ─── Standalone Worker Mode ───

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Mijo worker",
		zap.String("version", appVersion),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, err := application.NewWorker(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize worker", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := worker.Run(ctx); err != nil {
		log.Error("Error during worker shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Worker stopped successfully")
	return nil
}
