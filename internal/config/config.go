// internal/config/config.go
//
// Process configuration read from the environment.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port     string
	LogLevel zerolog.Level

	DBPath string

	WordsAllFile  string
	WordsPoolFile string

	SolutionPolicy string
	DailySalt      string

	JWTSecret      string
	JWTExpiresDays int

	ClientOrigin string
	Production   bool

	RedisAddr    string
	RedisChannel string
}

// Load reads .env (if any) and the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() Config {
	lvl, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return Config{
		Port:           getEnv("PORT", "5175"),
		LogLevel:       lvl,
		DBPath:         getEnv("DB_PATH", "./data/areas.db"),
		WordsAllFile:   os.Getenv("WORDS_ALL_FILE"),
		WordsPoolFile:  os.Getenv("WORDS_POOL_FILE"),
		SolutionPolicy: getEnv("SOLUTION_POLICY", "fresh"),
		DailySalt:      getEnv("DAILY_SALT", "local_dev_salt"),
		JWTSecret:      getEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays: envInt("JWT_EXPIRES_DAYS", 14),
		ClientOrigin:   getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:     os.Getenv("NODE_ENV") == "production",
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisChannel:   getEnv("REDIS_CHANNEL", "wordle:areas"),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt parses k as an int, falling back to def.
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
