package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBHost         string
	DBPort         string
	DBUser         string
	DBPass         string
	DBName         string
	ServerPort     string
	RedisURL       string
	Env            string
	FrontendURL    string
	RedisTTL       time.Duration
	MinioURL       string
	MinioPublicURL string
	MinioUser      string
	MinioPassword  string
	MinioBucket    string
	ExportTTL      time.Duration
	AMQPURL        string
	JWTSecret      string
	JWTTTL         time.Duration
	CronSecret     string
	SweepInterval  time.Duration
	SweepGrace     time.Duration
	SweepBatch     int
	ExitBaseURL    string
	AdminEmail     string
	AdminPassword  string
}

func LoadConfig() Config {
	return Config{
		DBHost:         getEnv("DB_HOST", "postgres"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPass:         getEnv("DB_PASSWORD", "password"),
		DBName:         getEnv("DB_NAME", "gamezone"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		RedisURL:       getEnv("REDIS_URL", "redis:6379"),
		Env:            getEnv("ENV", "dev"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		RedisTTL:       getEnvAsDuration("REDIS_TTL", 15*time.Second),
		MinioURL:       getEnv("MINIO_URL", "localhost:9000"),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", ""),
		MinioUser:      getEnv("MINIO_USER", "minioadmin"),
		MinioPassword:  getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "gamezone-exports"),
		ExportTTL:      getEnvAsDuration("EXPORT_RETENTION", 7*24*time.Hour),
		AMQPURL:        getEnv("AMQP_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", "change-me"),
		JWTTTL:         getEnvAsDuration("JWT_TTL", 12*time.Hour),
		CronSecret:     getEnv("CRON_SECRET", ""),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", 2*time.Minute),
		SweepGrace:     getEnvAsDuration("SWEEP_GRACE", 5*time.Minute),
		SweepBatch:     getEnvAsInt("SWEEP_BATCH", 200),
		ExitBaseURL:    getEnv("EXIT_BASE_URL", "http://localhost:3000/exit"),
		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return fallback
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort,
	)
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}
