package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load builds a Config from the process environment, falling back to
// Default() for any var that is unset or fails to parse. Unknown env
// vars are ignored. A .env file in the working directory is loaded
// first, if present, without overriding variables already set in the
// environment.
func Load() Config {
	_ = godotenv.Load()

	c := Default()

	c.ScanIntervalSeconds = envInt("SCAN_INTERVAL", c.ScanIntervalSeconds)
	c.TrendingTokensLimit = envInt("TRENDING_TOKENS_LIMIT", c.TrendingTokensLimit)
	c.GeckoTerminalRateLimit = envInt("GECKOTERMINAL_RATE_LIMIT", c.GeckoTerminalRateLimit)
	c.ZoneScoreMin = envFloat("ZONE_SCORE_MIN", c.ZoneScoreMin)
	c.ProximityThreshold = envFloat("PROXIMITY_THRESHOLD", c.ProximityThreshold)
	c.CooldownHours = envFloat("COOLDOWN_HOURS", c.CooldownHours)
	c.FibonacciTolerance = envFloat("FIBONACCI_TOLERANCE", c.FibonacciTolerance)

	c.HolderAPIKey = envString("HOLDER_API_KEY", c.HolderAPIKey)
	c.RedisURL = envString("DATABASE_URL", c.RedisURL)
	c.CacheBackend = envString("CACHE_BACKEND", c.CacheBackend)
	c.ControlAddr = envString("CONTROL_ADDR", c.ControlAddr)
	c.WatchlistSeedPath = envString("WATCHLIST_SEED_PATH", c.WatchlistSeedPath)

	c.ChatBotToken = envString("TELEGRAM_BOT_TOKEN", c.ChatBotToken)
	c.ChatID = envString("TELEGRAM_CHAT_ID", c.ChatID)

	return c
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
