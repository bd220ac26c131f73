package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config carries everything the services need at construction time. It is
// loaded once in main and passed down explicitly; no package-level state.
type Config struct {
	GeminiAPIKey        string
	GeminiModel         string
	HTTPPort            string
	SchemaPath          string
	WarehouseDSN        string
	WarehouseSecretName string
	AWSRegion           string
	LogLevel            string
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", ""),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		SchemaPath:          getEnv("SCHEMA_PATH", "configs/semantic.yml"),
		WarehouseDSN:        getEnv("WAREHOUSE_DSN", ""),
		WarehouseSecretName: getEnv("WAREHOUSE_SECRET_NAME", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-west-2"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.WarehouseDSN == "" && cfg.WarehouseSecretName == "" {
		return Config{}, fmt.Errorf("either WAREHOUSE_DSN or WAREHOUSE_SECRET_NAME is required")
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
