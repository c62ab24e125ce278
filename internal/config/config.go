package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	AppEnv                    string
	DatabaseURL               string
	AutoMigrate               bool
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	StoreID                   string
	AuthSecret                string
	AccessTokenTTLMinutes     int
	ManagerPIN                string
	CartTTLMinutes            int
	CheckoutTimeoutSeconds    int
	StockDecrementConcurrency int
	LoginRoute                string
	DefaultRoute              string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                    strings.ToLower(getEnv("APP_ENV", "production")),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		AutoMigrate:               getBool("AUTO_MIGRATE", true),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		StoreID:                   getEnv("DEFAULT_STORE_ID", "main-store"),
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:     getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:                strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		CartTTLMinutes:            getPositiveInt("CART_TTL_MINUTES", 720),
		CheckoutTimeoutSeconds:    getPositiveInt("CHECKOUT_TIMEOUT_SECONDS", 15),
		StockDecrementConcurrency: getPositiveInt("STOCK_DECREMENT_CONCURRENCY", 4),
		LoginRoute:                getEnv("LOGIN_ROUTE", "/login"),
		DefaultRoute:              getEnv("DEFAULT_ROUTE", "/pos"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLMinutes) * time.Minute
}

func (c Config) CheckoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}
