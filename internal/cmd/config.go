package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrawlgame/scrawl/internal/game"
)

// Config is the environment-owned process configuration.
type Config struct {
	Port          string
	RedisAddr     string
	AllowedOrigin string
	NATSURL       string
	TimerBackend  string // "memory" or "redis"
	GameConfig    string // optional YAML tuning file
	RoomTTL       time.Duration
}

func loadConfig() Config {
	return Config{
		Port:          getEnv("PORT", "5000"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		AllowedOrigin: getEnv("FRONTEND_URL", "*"),
		NATSURL:       getEnv("NATS_URL", ""),
		TimerBackend:  getEnv("ROUND_TIMER_BACKEND", "memory"),
		GameConfig:    getEnv("GAME_CONFIG", ""),
		RoomTTL:       time.Duration(getEnvAsInt("ROOM_TTL_SECONDS", 3600)) * time.Second,
	}
}

// GameTuning is the optional YAML file overriding round pacing, scoring
// and the word list.
type GameTuning struct {
	RoundSeconds        int    `yaml:"round_seconds"`
	RestartDelaySeconds int    `yaml:"restart_delay_seconds"`
	GuessReward         int    `yaml:"guess_reward"`
	WordsFile           string `yaml:"words_file"`
}

func loadGameTuning(path string) (*GameTuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game config file: %w", err)
	}
	var tuning GameTuning
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("failed to parse game config: %w", err)
	}
	return &tuning, nil
}

// gameConfig folds the optional tuning file over the defaults.
func gameConfig(tuning *GameTuning) game.Config {
	cfg := game.DefaultConfig()
	if tuning == nil {
		return cfg
	}
	if tuning.RoundSeconds > 0 {
		cfg.RoundDuration = time.Duration(tuning.RoundSeconds) * time.Second
	}
	if tuning.RestartDelaySeconds > 0 {
		cfg.RestartDelay = time.Duration(tuning.RestartDelaySeconds) * time.Second
	}
	if tuning.GuessReward > 0 {
		cfg.GuessReward = tuning.GuessReward
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
