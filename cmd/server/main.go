package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"fuwachat/internal/backend"
	"fuwachat/internal/config"
	"fuwachat/internal/handler"
	"fuwachat/internal/logger"
	"fuwachat/internal/profile"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 環境変数を読み込み
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogSink); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Warn("env_file_not_found", "error", envErr)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "env", cfg.Env, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ストアを初期化
	b, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Error("store_init_failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer b.Close()

	go func() {
		if err := b.Run(ctx); err != nil {
			logger.Error("relay_stopped", "error", err)
		}
	}()

	var profiles profile.Lookup = profile.NewStatic()
	if cfg.ProfilesFile != "" {
		p, err := profile.Load(cfg.ProfilesFile)
		if err != nil {
			logger.Error("profiles_load_failed", "path", cfg.ProfilesFile, "error", err)
			os.Exit(1)
		}
		profiles = p
	}

	// ハンドラー初期化
	h := handler.New(cfg, b.Adapter, profiles)
	defer h.Close()

	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)
	logger.Info("server_started", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("server_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server_shutdown_failed", "error", err)
		}
	}
}

func printBanner(cfg config.Config) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	value := color.New(color.FgGreen).SprintFunc()

	fmt.Println("========================================")
	fmt.Println(title("  Fuwachat Messaging Server"))
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", value(cfg.Env))
	fmt.Printf("  Server: %s\n", value("http://localhost:"+cfg.ServerPort))
	fmt.Printf("  WebSocket: %s\n", value("ws://localhost:"+cfg.ServerPort+"/ws"))
	fmt.Printf("  Store: %s\n", value(cfg.StoreDriver))
	if cfg.StoreDriver == "mysql" && cfg.DBName != "" {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	if cfg.RedisAddr != "" {
		fmt.Printf("  Relay: %s\n", value(cfg.RedisAddr))
	}
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
}
