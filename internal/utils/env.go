package utils

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv reads .env (or the file named by ENV_FILE) into the process environment.
// Variables already set are left untouched.
func LoadEnv(logger *zap.Logger) {
	file := os.Getenv("ENV_FILE")
	if file == "" {
		file = ".env"
	}

	if err := godotenv.Load(file); err != nil {
		logger.Warn("Env file not loaded, using process environment", zap.String("file", file))
		return
	}
	logger.Info("Env file loaded", zap.String("file", file))
}
