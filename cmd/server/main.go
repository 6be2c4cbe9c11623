package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"rfphub/internal/app"
	"rfphub/internal/config"
	"rfphub/internal/ratelimit"
	"rfphub/internal/server"
	"rfphub/internal/usertoken"
	"rfphub/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var uploadLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" && cfg.UploadRateLimitPerMinute > 0 {
		uploadLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "", cfg.UploadRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init upload rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  verifier,
		UploadLimiter:  uploadLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
