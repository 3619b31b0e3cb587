package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env carries process-wide settings that are not tied to a symbol.
type Env struct {
	BinanceAPIKey    string
	BinanceSecretKey string
	HTTPAddr         string
	JournalDir       string
	ExportDir        string
	TelegramToken    string
	TelegramChatID   string
	RedisAddr        string
	RedisPassword    string
}

// LoadEnv reads .env when present and then the process environment.
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_API_SECRET"),
		HTTPAddr:         getenv("PVSRA_HTTP_ADDR", ":8080"),
		JournalDir:       getenv("PVSRA_JOURNAL_DIR", "./wal/journal"),
		ExportDir:        os.Getenv("PVSRA_EXPORT_DIR"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
