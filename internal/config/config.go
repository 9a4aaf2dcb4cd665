package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the server. The cadence constants default
// to the values the game was balanced around; override them through the
// environment for tests and staging.
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Round cadence.
	CycleSecs  int // full round length
	LobbySecs  int // inter-round window inside the cycle
	MinRoom    int
	NumRooms   int
	MaxSkipFwd int // cap on lobby seconds dropped per cycle

	// Clock calibration.
	Normal            time.Duration
	Fast              time.Duration
	Slow              time.Duration
	Faster            time.Duration
	Slower            time.Duration
	ErrThreshold      time.Duration
	ErrThresholdLarge time.Duration
	InitOffset        time.Duration
	LargeSkew         bool
}

// PlaySecs is the length of the play window inside a cycle.
func (c Config) PlaySecs() int {
	return c.CycleSecs - c.LobbySecs
}

func Load() Config {
	return Config{
		Port:           getEnv("PORT", "6789"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		CycleSecs:  getEnvInt("CYCLE_SECS", 180),
		LobbySecs:  getEnvInt("LOBBY_SECS", 30),
		MinRoom:    getEnvInt("MIN_ROOM", 0),
		NumRooms:   getEnvInt("NUM_ROOMS", 4),
		MaxSkipFwd: getEnvInt("MAX_SKIP_FWD", 9),

		Normal:            getEnvMillis("TICK_NORMAL_MS", 990),
		Fast:              getEnvMillis("TICK_FAST_MS", 976),
		Slow:              getEnvMillis("TICK_SLOW_MS", 1004),
		Faster:            getEnvMillis("TICK_FASTER_MS", 960),
		Slower:            getEnvMillis("TICK_SLOWER_MS", 1020),
		ErrThreshold:      getEnvMillis("ERR_THRESHOLD_MS", 10),
		ErrThresholdLarge: getEnvMillis("ERR_THRESHOLD_LARGE_MS", 25),
		InitOffset:        getEnvMillis("INIT_OFFSET_MS", -10),
		LargeSkew:         getEnvBool("LARGE_SKEW", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
