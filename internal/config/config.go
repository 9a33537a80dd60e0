package config

import (
	"os"
	"strconv"
)

type Config struct {
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	ServerPort       string
	JWTSecret        string

	// Defaults used when a container has no explicit images configured.
	DefaultOpenImage   string
	DefaultClosedImage string

	// CurrencyEnabled disables currency loot entirely when false.
	CurrencyEnabled bool

	// CreateTimeoutMS bounds the wait for a relayed token creation to
	// be confirmed by the authority.
	CreateTimeoutMS int

	// GridSize is the scene grid cell size in pixels.
	GridSize float64
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseHost:       getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:       getEnv("DATABASE_PORT", "5432"),
		DatabaseUser:       getEnv("DATABASE_USER", "postgres"),
		DatabasePassword:   getEnv("DATABASE_PASSWORD", "password"),
		DatabaseName:       getEnv("DATABASE_NAME", "lootstix"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		DefaultOpenImage:   getEnv("DEFAULT_OPEN_IMAGE", "assets/chest-opened.png"),
		DefaultClosedImage: getEnv("DEFAULT_CLOSED_IMAGE", "assets/chest-closed.png"),
		CurrencyEnabled:    getEnvBool("CURRENCY_ENABLED", true),
		CreateTimeoutMS:    getEnvInt("CREATE_TIMEOUT_MS", 2000),
		GridSize:           float64(getEnvInt("GRID_SIZE", 100)),
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}
