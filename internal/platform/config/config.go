package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	StorageBackend string
	PostgresDSN    string
	Redis          RedisConfig
	KafkaBrokers   []string
	JWTSigningKey  string
	AdminToken     string
	AdminTokenHash string
}

// RedisConfig holds connection settings for the ruleset snapshot cache.
// An empty URL disables caching entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SnapshotTTL  time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CONFORMA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backend := os.Getenv("STORAGE_BACKEND")
	if backend == "" {
		if os.Getenv("POSTGRES_DSN") != "" {
			backend = "postgres"
		} else {
			backend = "memory"
		}
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return Server{
		Addr:           addr,
		StorageBackend: backend,
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		Redis:          redisFromEnv(),
		KafkaBrokers:   brokers,
		JWTSigningKey:  jwtSigningKey,
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
	}
}

func redisFromEnv() RedisConfig {
	cfg := RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		SnapshotTTL:  5 * time.Minute,
	}
	if raw := os.Getenv("REDIS_POOL_SIZE"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			cfg.PoolSize = size
		}
	}
	if raw := os.Getenv("REDIS_SNAPSHOT_TTL"); raw != "" {
		if ttl, err := time.ParseDuration(raw); err == nil && ttl > 0 {
			cfg.SnapshotTTL = ttl
		}
	}
	return cfg
}
