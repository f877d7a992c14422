package main

import (
	"context"
	"encoding/base64"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linepaste/cfg"
	"linepaste/metrics"
	"linepaste/pkg/kms"
	"linepaste/svc/api"
	"linepaste/svc/cache"
	"linepaste/svc/db"
	"linepaste/svc/lim"
	"linepaste/svc/mail"
	"linepaste/svc/store"
	"linepaste/svc/svc"
	"linepaste/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		info, err := os.Stat(dataDir)
		if err != nil || !info.IsDir() {
			os.Exit(1)
		}
		os.Exit(0)
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting linepaste API")
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kmsAdapter, err := kms.NewAdapter(ctx)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize KMS adapter")
		os.Exit(1)
	}

	var storeKey []byte
	if c.StoreKeyFromKMS {
		storeKey, err = kms.LoadStoreKey(ctx, kmsAdapter, "PASTE_STORE_KEY")
		if err != nil {
			util.Fatal().Err(err).Msg("CRITICAL: failed to load store key from KMS")
			os.Exit(1)
		}
	} else {
		storeKey, err = base64.StdEncoding.DecodeString(c.StoreKey.Value())
		if err != nil {
			util.Fatal().Err(err).Msg("CRITICAL: invalid store key format")
			os.Exit(1)
		}
	}

	st, err := store.New(c.DataDir, storeKey)
	if err != nil {
		util.Wipe(storeKey)
		util.Fatal().Err(err).Msg("failed to initialize paste store")
		os.Exit(1)
	}
	util.Wipe(storeKey)
	defer st.Close()
	util.Info().Str("dir", c.DataDir).Msg("paste store initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("CRITICAL: Redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	var mailer mail.Sender
	if c.EnableSMTP {
		mailer = mail.NewSMTP(c)
		util.Info().Str("host", c.SMTPHost).Msg("SMTP mailer initialized")
	}

	pasteSvc := svc.NewPaste(st, lruCache, rdb, mailer, c)
	util.Info().Int("workers", c.WorkerPoolSize).Msg("paste service initialized")

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, rdb, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter, st, rdb)

	go func() {
		util.Info().Msg("starting pprof server on :6060")
		if err := http.ListenAndServe(":6060", nil); err != nil {
			util.Warn().Err(err).Msg("pprof server failed")
		}
	}()

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	cancel()
	pasteSvc.Shutdown()
	util.Info().Msg("shutdown complete")
}
