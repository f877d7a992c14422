package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port            string
	Environment     string
	LogLevel        string
	DataDir         string
	UIDLength       int
	MaxPasteSize    int64
	MaxCommentSize  int64
	ContextTimeout  time.Duration
	StoreKey        Secret
	StoreKeyFromKMS bool
	RedisURL        string
	RedisTLS        bool
	RedisUsername   string
	RedisPassword   Secret
	RedisTimeout    time.Duration
	LRUCacheSize    int
	RateLimit       RateLimitCfg
	TrustedProxies  []string
	AllowedOrigins  []string
	MetricsUser     string
	MetricsPass     Secret
	WorkerPoolSize  int
	NotifyTimeout   time.Duration
	EnableSMTP      bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    Secret
	SMTPFromEmail   string
	SMTPFromName    string
	AppBaseURL      string
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DataDir = getEnv("DATA_DIR", "data")
	var err error
	c.UIDLength, err = getInt("UID_LENGTH", 8)
	if err != nil {
		return nil, err
	}
	c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 256*1024)
	if err != nil {
		return nil, err
	}
	c.MaxCommentSize, err = getInt64("MAX_COMMENT_SIZE", 16*1024)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.StoreKey = NewSecret(getEnv("PASTE_STORE_KEY", ""))
	c.StoreKeyFromKMS = getEnv("STORE_KEY_FROM_KMS", "false") == "true"
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 60)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ConservativeLimit, err = getInt("RATE_LIMIT_CONSERVATIVE", 5)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.WorkerPoolSize, err = getInt("WORKER_POOL_SIZE", 4)
	if err != nil {
		return nil, err
	}
	c.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.EnableSMTP = getEnv("ENABLE_SMTP", "false") == "true"
	c.SMTPHost = getEnv("SMTP_HOST", "")
	c.SMTPPort, err = getInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	c.SMTPUsername = getEnv("SMTP_USERNAME", "")
	c.SMTPPassword = NewSecret(getEnv("SMTP_PASSWORD", ""))
	c.SMTPFromEmail = getEnv("SMTP_FROM_EMAIL", "")
	c.SMTPFromName = getEnv("SMTP_FROM_NAME", "Commie Bot")
	c.AppBaseURL = getEnv("APP_BASE_URL", "http://localhost:8080")
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if c.UIDLength < 4 || c.UIDLength > 128 {
		return errors.New("UID_LENGTH must be between 4 and 128")
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 10MB")
	}
	if c.MaxCommentSize <= 0 || c.MaxCommentSize > c.MaxPasteSize {
		return errors.New("MAX_COMMENT_SIZE must be positive and not exceed MAX_PASTE_SIZE")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.WorkerPoolSize <= 0 {
		return errors.New("WORKER_POOL_SIZE must be positive")
	}
	if c.NotifyTimeout < time.Second {
		return errors.New("NOTIFY_TIMEOUT must be at least 1s")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if !c.StoreKeyFromKMS && c.StoreKey.Value() == "" {
		return errors.New("PASTE_STORE_KEY is required if STORE_KEY_FROM_KMS is false")
	}
	if c.EnableSMTP {
		if c.SMTPHost == "" {
			return errors.New("SMTP_HOST is required when ENABLE_SMTP is true")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return errors.New("SMTP_PORT must be a valid port")
		}
		if c.SMTPFromEmail == "" {
			return errors.New("SMTP_FROM_EMAIL is required when ENABLE_SMTP is true")
		}
	}
	if _, err := url.ParseRequestURI(c.AppBaseURL); err != nil {
		return fmt.Errorf("invalid APP_BASE_URL: %w", err)
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.StoreKey.Wipe()
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.SMTPPassword.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
