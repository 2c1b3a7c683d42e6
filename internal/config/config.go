package config

import "os"

type Config struct {
	Addr  string
	DBDsn string

	CertAPIToken string

	KassaAPIURL    string
	KassaShopID    string
	KassaSecretKey string
	KassaReturnURL string

	BotToken string
}

func Load() *Config {
	return &Config{
		Addr:  getEnvOrDefault("HTTP_ADDR", "0.0.0.0:8080"),
		DBDsn: getEnvOrDefault("DB_DSN", "/data/vpn-backend.db"),

		CertAPIToken: os.Getenv("CERT_API_TOKEN"),

		KassaAPIURL:    os.Getenv("KASSA_API_URL"),
		KassaShopID:    os.Getenv("KASSA_SHOP_ID"),
		KassaSecretKey: os.Getenv("KASSA_SECRET_KEY"),
		KassaReturnURL: getEnvOrDefault("KASSA_RETURN_URL", "https://t.me"),

		BotToken: os.Getenv("BOT_TOKEN"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
