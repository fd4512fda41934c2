package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the realtime client process
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Brokerage
	KIS      KISConfig
	Realtime RealtimeConfig

	// Infrastructure
	Redis    RedisConfig
	Database DatabaseConfig
	Status   StatusConfig
	Session  SessionConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// KISConfig holds KIS (한국투자증권) API credentials and endpoints
type KISConfig struct {
	AppKey           string
	AppSecret        string
	VirtualAppKey    string // 모의투자 앱키
	VirtualAppSecret string
	AccountNo        string // 12345678-01
	HtsID            string // HTS ID (체결통보 구독 키)
	BaseURL          string
	VirtualBaseURL   string
	IsVirtual        bool // 모의투자 여부
}

// RealtimeConfig holds WebSocket client settings.
// One value is owned by each client instance; nothing here is process-global.
type RealtimeConfig struct {
	URL               string
	VirtualURL        string
	MaxSubscriptions  int // 세션당 최대 실시간 등록 수
	Reconnect         bool
	ReconnectInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	LeakDetection     bool // 해제되지 않은 티켓 경고 (디버그용)
	StoreRaw          bool // 응답 객체에 원본 필드 보관
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration for the event journal
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// StatusConfig holds the status HTTP server configuration
type StatusConfig struct {
	Port    string
	Enabled bool
}

// SessionConfig holds the market-session schedule (cron, with seconds)
type SessionConfig struct {
	Enabled   bool
	OpenSpec  string
	CloseSpec string
	Location  string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		KIS: KISConfig{
			AppKey:           getEnv("KIS_APP_KEY", ""),
			AppSecret:        getEnv("KIS_APP_SECRET", ""),
			VirtualAppKey:    getEnv("KIS_VIRTUAL_APP_KEY", ""),
			VirtualAppSecret: getEnv("KIS_VIRTUAL_APP_SECRET", ""),
			AccountNo:        getEnv("KIS_ACCOUNT_NO", ""),
			HtsID:            getEnv("KIS_HTS_ID", ""),
			BaseURL:          getEnv("KIS_BASE_URL", "https://openapi.koreainvestment.com:9443"),
			VirtualBaseURL:   getEnv("KIS_VIRTUAL_BASE_URL", "https://openapivts.koreainvestment.com:29443"),
			IsVirtual:        getEnvAsBool("KIS_IS_VIRTUAL", false),
		},

		Realtime: DefaultRealtime(),

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Status: StatusConfig{
			Port:    getEnv("STATUS_PORT", "8090"),
			Enabled: getEnvAsBool("STATUS_ENABLED", false),
		},

		Session: SessionConfig{
			Enabled:   getEnvAsBool("SESSION_ENABLED", false),
			OpenSpec:  getEnv("SESSION_OPEN", "0 30 8 * * 1-5"),
			CloseSpec: getEnv("SESSION_CLOSE", "0 40 15 * * 1-5"),
			Location:  getEnv("SESSION_TZ", "Asia/Seoul"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	rt := &cfg.Realtime
	rt.URL = getEnv("KIS_WS_URL", rt.URL)
	rt.VirtualURL = getEnv("KIS_WS_VIRTUAL_URL", rt.VirtualURL)
	rt.MaxSubscriptions = getEnvAsInt("KIS_WS_MAX_SUBSCRIPTIONS", rt.MaxSubscriptions)
	rt.Reconnect = getEnvAsBool("KIS_WS_RECONNECT", rt.Reconnect)
	rt.ReconnectInterval = getEnvAsDuration("KIS_WS_RECONNECT_INTERVAL", rt.ReconnectInterval.String())
	rt.HandshakeTimeout = getEnvAsDuration("KIS_WS_HANDSHAKE_TIMEOUT", rt.HandshakeTimeout.String())
	rt.WriteTimeout = getEnvAsDuration("KIS_WS_WRITE_TIMEOUT", rt.WriteTimeout.String())
	rt.LeakDetection = getEnvAsBool("KIS_WS_LEAK_DETECTION", rt.LeakDetection)
	rt.StoreRaw = getEnvAsBool("KIS_WS_STORE_RAW", rt.StoreRaw)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultRealtime returns the WebSocket defaults used when no env override exists
func DefaultRealtime() RealtimeConfig {
	return RealtimeConfig{
		URL:               "ws://ops.koreainvestment.com:21000/tryitout/H0STCNT0",
		VirtualURL:        "ws://ops.koreainvestment.com:31000/tryitout/H0STCNT0",
		MaxSubscriptions:  41,
		Reconnect:         true,
		ReconnectInterval: 5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Realtime.MaxSubscriptions <= 0 {
		return fmt.Errorf("KIS_WS_MAX_SUBSCRIPTIONS must be positive")
	}

	if c.Realtime.ReconnectInterval <= 0 {
		return fmt.Errorf("KIS_WS_RECONNECT_INTERVAL must be positive")
	}

	if c.KIS.IsVirtual && c.KIS.VirtualAppKey == "" && c.KIS.AppKey != "" {
		return fmt.Errorf("KIS_VIRTUAL_APP_KEY is required when KIS_IS_VIRTUAL is set")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
