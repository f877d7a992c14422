package cfg

import (
	"testing"
	"time"
)

func validBase() *Cfg {
	return &Cfg{
		Port:           "8080",
		Environment:    "development",
		DataDir:        "data",
		UIDLength:      8,
		MaxPasteSize:   256 * 1024,
		MaxCommentSize: 16 * 1024,
		StoreKey:       NewSecret("dGVzdC1rZXk="),
		LRUCacheSize:   1000,
		RateLimit:      RateLimitCfg{RPM: 60, Burst: 10, ConservativeLimit: 5},
		WorkerPoolSize: 4,
		NotifyTimeout:  10 * time.Second,
		AppBaseURL:     "http://localhost:8080",
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PASTE_STORE_KEY", "dGVzdC1rZXk=")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != "8080" {
		t.Errorf("default port: %s", c.Port)
	}
	if c.UIDLength != 8 {
		t.Errorf("default uid length: %d", c.UIDLength)
	}
	if c.MaxPasteSize != 256*1024 {
		t.Errorf("default max paste size: %d", c.MaxPasteSize)
	}
	if c.SMTPFromName != "Commie Bot" {
		t.Errorf("default from name: %q", c.SMTPFromName)
	}
	if c.NotifyTimeout != 10*time.Second {
		t.Errorf("default notify timeout: %v", c.NotifyTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UID_LENGTH", "32")
	t.Setenv("MAX_PASTE_SIZE", "1024")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.UIDLength != 32 {
		t.Errorf("uid length override: %d", c.UIDLength)
	}
	if c.MaxPasteSize != 1024 {
		t.Errorf("max paste size override: %d", c.MaxPasteSize)
	}
	if len(c.TrustedProxies) != 2 || c.TrustedProxies[1] != "10.0.0.2" {
		t.Errorf("trusted proxies: %v", c.TrustedProxies)
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("UID_LENGTH", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(validBase()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Cfg)
	}{
		{"uid too short", func(c *Cfg) { c.UIDLength = 2 }},
		{"uid too long", func(c *Cfg) { c.UIDLength = 200 }},
		{"paste size zero", func(c *Cfg) { c.MaxPasteSize = 0 }},
		{"paste size huge", func(c *Cfg) { c.MaxPasteSize = 11 * 1024 * 1024 }},
		{"comment larger than paste", func(c *Cfg) { c.MaxCommentSize = c.MaxPasteSize + 1 }},
		{"missing store key", func(c *Cfg) { c.StoreKey = NewSecret("") }},
		{"bad redis scheme", func(c *Cfg) { c.RedisURL = "http://localhost:6379" }},
		{"rediss without tls", func(c *Cfg) { c.RedisURL = "rediss://localhost:6379" }},
		{"bad trusted proxy", func(c *Cfg) { c.TrustedProxies = []string{"not-an-ip"} }},
		{"smtp without host", func(c *Cfg) { c.EnableSMTP = true; c.SMTPFromEmail = "x@y.com" }},
		{"smtp without from", func(c *Cfg) { c.EnableSMTP = true; c.SMTPHost = "mail.example.com" }},
		{"short notify timeout", func(c *Cfg) { c.NotifyTimeout = 100 * time.Millisecond }},
		{"production without metrics auth", func(c *Cfg) { c.Environment = "production" }},
		{"bad base url", func(c *Cfg) { c.AppBaseURL = "not a url" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validBase()
			tc.mutate(c)
			if err := Validate(c); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestValidateKMSKeySkipsEnvKey(t *testing.T) {
	c := validBase()
	c.StoreKey = NewSecret("")
	c.StoreKeyFromKMS = true
	if err := Validate(c); err != nil {
		t.Errorf("KMS-sourced key should not require PASTE_STORE_KEY: %v", err)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := NewSecret("super-secret")
	if s.String() != "***REDACTED***" {
		t.Errorf("secret leaked through String: %s", s.String())
	}
	if s.Value() != "super-secret" {
		t.Errorf("Value() should return the raw secret")
	}
	s.Wipe()
	if s.Value() == "super-secret" {
		t.Errorf("secret survived Wipe")
	}
}
