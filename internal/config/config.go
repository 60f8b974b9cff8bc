// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is everything the server recognizes from the environment.
type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr string
	RedisDB   int

	TonAPIURL             string
	TonAPIKey             string
	ConfirmationsRequired int

	TgBotToken      string
	TgWebhookSecret string

	WSAllowedOrigins []string
}

// Load reads the configuration. Every option has a usable default
// except the external endpoints, whose absence disables the feature.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		TonAPIURL:             getEnv("TON_API_URL", ""),
		TonAPIKey:             getEnv("TON_API_KEY", ""),
		ConfirmationsRequired: getEnvInt("CONFIRMATIONS_REQUIRED", 3),

		TgBotToken:      getEnv("TG_BOT_TOKEN", ""),
		TgWebhookSecret: getEnv("TG_BOT_API_SECRET", ""),

		WSAllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvList(key string, def []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
