package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// DatabaseURL selects the Postgres repositories when set; empty keeps
	// the in-memory ones.
	DatabaseURL string
	// AMQPURL selects the RabbitMQ alert channel when set; empty keeps the
	// in-process bus.
	AMQPURL string

	LowStockThreshold int
	PaymentTimeout    time.Duration
	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration
}

func Load() Config {
	return Config{
		ServiceName:       getenvDefault("SERVICE_NAME", "checkout-core"),
		Env:               getenvDefault("ENV", "dev"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		LowStockThreshold: getenvInt("LOW_STOCK_THRESHOLD", 10),
		PaymentTimeout:    getenvDuration("PAYMENT_TIMEOUT", 10*time.Second),
		ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileAfter:    getenvDuration("RECONCILE_AFTER", time.Minute),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
