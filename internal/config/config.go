package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                      string
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	TenantID                 string
	BranchID                 string
	PromotionCacheTTLSeconds int
	DisablePromotions        bool
	MaxDiscountPercent       float64
}

// Load reads the process environment. A .env file in the working directory
// fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("PROMOTION_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	maxDiscount, err := strconv.ParseFloat(getEnv("MAX_DISCOUNT_PERCENT", "0"), 64)
	if err != nil || maxDiscount < 0 || maxDiscount > 100 {
		maxDiscount = 0
	}
	disable, _ := strconv.ParseBool(getEnv("DISABLE_PROMOTIONS", "false"))

	return Config{
		Env:                      getEnv("APP_ENV", "development"),
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		TenantID:                 strings.TrimSpace(getEnv("DEFAULT_TENANT_ID", "atelier")),
		BranchID:                 strings.TrimSpace(os.Getenv("DEFAULT_BRANCH_ID")),
		PromotionCacheTTLSeconds: ttl,
		DisablePromotions:        disable,
		MaxDiscountPercent:       maxDiscount,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
