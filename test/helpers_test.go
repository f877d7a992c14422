package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"linepaste/cfg"
	"linepaste/pkg/kms"
	"linepaste/svc/cache"
	"linepaste/svc/mail"
	"linepaste/svc/store"
	"linepaste/svc/svc"
	"linepaste/svc/util"
)

var envLoadOnce sync.Once

func loadTestEnv() {
	envLoadOnce.Do(func() {
		paths := []string{
			".env.test",
			"../.env.test",
		}
		for _, p := range paths {
			if absPath, err := filepath.Abs(p); err == nil {
				if _, err := os.Stat(absPath); err == nil {
					if err := godotenv.Load(absPath); err == nil {
						return
					}
				}
			}
		}
		if os.Getenv("KMS_LOCAL_KEY") == "" {
			os.Setenv("KMS_LOCAL_KEY", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
		}
	})
}

func createTestConfig() *cfg.Cfg {
	loadTestEnv()
	util.InitLog("error", false)
	return &cfg.Cfg{
		Port:           "0",
		Environment:    "test",
		LogLevel:       "error",
		UIDLength:      8,
		MaxPasteSize:   1 << 20,
		MaxCommentSize: 1 << 14,
		ContextTimeout: 10 * time.Second,
		LRUCacheSize:   1000,
		RateLimit:      cfg.RateLimitCfg{RPM: 100000, Burst: 100000, ConservativeLimit: 100000},
		WorkerPoolSize: 2,
		NotifyTimeout:  5 * time.Second,
		AppBaseURL:     "http://localhost:8080",
	}
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	return createTestStoreAt(t, t.TempDir())
}

func createTestStoreAt(t *testing.T, dataDir string) *store.Store {
	t.Helper()
	key, err := kms.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	s, err := store.New(dataDir, key)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func createTestService(t *testing.T, c *cfg.Cfg, mailer mail.Sender) *svc.Paste {
	t.Helper()
	st := createTestStore(t)
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("cache.NewLRU failed: %v", err)
	}
	p := svc.NewPaste(st, lru, nil, mailer, c)
	t.Cleanup(p.Shutdown)
	return p
}
