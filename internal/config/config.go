package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

// Config 汇总服务启动所需的全部配置
type Config struct {
	Port          string
	DBDriver      string // postgres 或 sqlite
	DatabaseURL   string
	AllowOrigins  []string // FRONTEND_URL + SOCKET_ORIGIN
	GinMode       string
	ListCacheTTL  time.Duration
	ListCacheSize int
	SendBuffer    int // 每个 websocket 连接的出站缓冲
	SQLDebug      bool
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		glog.Info("No .env file found, finding env vars from system")
	}

	cfg := Config{
		Port:          getenv("PORT", "5000"),
		DBDriver:      strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		GinMode:       os.Getenv("GIN_MODE"),
		ListCacheTTL:  getDuration("LIST_CACHE_TTL", time.Minute),
		ListCacheSize: getInt("LIST_CACHE_SIZE", 500),
		SendBuffer:    getInt("WS_SEND_BUFFER", 64),
		SQLDebug:      getBool("SQL_DEBUG", false),
	}

	if cfg.DatabaseURL == "" {
		// Fallback for local dev if not set
		switch cfg.DBDriver {
		case "sqlite":
			cfg.DatabaseURL = "forum.sqlite3"
		default:
			cfg.DatabaseURL = "host=localhost user=postgres password=postgres dbname=forum port=5432 sslmode=disable"
		}
	}

	frontend := getenv("FRONTEND_URL", "http://localhost:5173")
	socket := getenv("SOCKET_ORIGIN", frontend)
	cfg.AllowOrigins = []string{frontend}
	if socket != frontend {
		cfg.AllowOrigins = append(cfg.AllowOrigins, socket)
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		glog.Warningf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		glog.Warningf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
