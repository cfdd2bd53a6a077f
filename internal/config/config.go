// internal/config/config.go
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config stores application configuration loaded from the environment
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool

	// LLM provider selection; the editor only builds prompts, so these
	// stay optional
	LLMProvider string
	LLMAPIKey   string
}

// Load reads configuration from environment variables, with an
// optional .env file
func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DataDir:     getEnvPath("DATA_DIR", "data"),
		LogDir:      getEnvPath("LOG_DIR", "logs"),
		DebugMode:   getEnvBool("DEBUG_MODE", true),
		LLMProvider: getEnv("LLM_PROVIDER", ""),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
	}

	return config, nil
}

// getEnv returns an environment variable or its default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a path environment variable, creating the
// directory when missing
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		os.MkdirAll(path, 0755)
	}
	return path
}

// getEnvBool returns a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}
