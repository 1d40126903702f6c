package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"atelierpos/internal/cache"
	"atelierpos/internal/config"
	"atelierpos/internal/httpapi"
	"atelierpos/internal/logger"
	"atelierpos/internal/pricing"
	"atelierpos/internal/service"
	"atelierpos/internal/store"
	"atelierpos/internal/store/memory"
	pgstore "atelierpos/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("postgres schema migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.TenantID)
		log.Info("repository: in-memory", zap.String("tenant_id", cfg.TenantID))
	}

	promoCache := cache.PromotionCache(cache.NoopPromotionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisPromotionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			promoCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: noop")
	}

	svc := service.New(repo, service.Options{
		TenantID: cfg.TenantID,
		BranchID: cfg.BranchID,
		Cache:    promoCache,
		CacheTTL: time.Duration(cfg.PromotionCacheTTLSeconds) * time.Second,
		Rules:    businessRules(cfg),
		Logger:   log,
	})
	api := httpapi.New(svc, log, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("atelier POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateConfig(cfg config.Config) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("DEFAULT_TENANT_ID must not be empty")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}
	if cfg.MaxDiscountPercent < 0 || cfg.MaxDiscountPercent > 100 {
		return fmt.Errorf("MAX_DISCOUNT_PERCENT must be within 0..100")
	}
	return nil
}

func businessRules(cfg config.Config) pricing.BusinessRules {
	return pricing.BusinessRules{
		DisablePromotions:  cfg.DisablePromotions,
		MaxDiscountPercent: cfg.MaxDiscountPercent,
	}
}
