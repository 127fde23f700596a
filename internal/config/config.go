package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	Env               string
	BotURL            string
	BotEnabled        bool
	MongoURI          string
	MongoDB           string
	MattermostURL     string
	ShiftBotToken     string
	SlashCommandToken string

	RedisAddr     string
	RedisPassword string
	SelectionTTL  time.Duration

	InviteSecret string

	FirebaseCredentialsFile string
	PhotoBucket             string
	PhotoMaxDimension       int

	Timezone              string
	DefaultLocale         string
	DefaultGeofenceRadius float64

	ReminderSchedule     string
	ReminderTriggerToken string
	UpcomingLookaheadMin time.Duration
	UpcomingLookaheadMax time.Duration
	UpcomingDedup        bool
	ForgottenAfter       time.Duration
	ForgottenDedupWindow time.Duration
	SweepTimeout         time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN load .env: %v", err)
	}

	return &Config{
		Port:              getEnv("PORT", "3000"),
		Env:               getEnv("ENV", "development"),
		BotURL:            strings.TrimRight(getEnv("BOT_URL", "http://bot-service:3000"), "/"),
		BotEnabled:        getEnvBool("BOT_ENABLED", true),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGODB_DATABASE", "crewshift"),
		MattermostURL:     strings.TrimRight(getEnv("MATTERMOST_URL", "http://localhost:8065"), "/"),
		ShiftBotToken:     getEnv("SHIFT_BOT_TOKEN", ""),
		SlashCommandToken: getEnv("SLASH_COMMAND_TOKEN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SelectionTTL:  getEnvDuration("SELECTION_TTL", 24*time.Hour),

		InviteSecret: getEnv("INVITE_SECRET", "dev-invite-secret"),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		PhotoBucket:             getEnv("PHOTO_BUCKET", ""),
		PhotoMaxDimension:       getEnvInt("PHOTO_MAX_DIMENSION", 1600),

		Timezone:              getEnv("LOCAL_TIMEZONE", "UTC"),
		DefaultLocale:         getEnv("DEFAULT_LOCALE", "en"),
		DefaultGeofenceRadius: float64(getEnvInt("DEFAULT_GEOFENCE_RADIUS", 100)),

		ReminderSchedule:     os.Getenv("REMINDER_SCHEDULE"),
		ReminderTriggerToken: getEnv("REMINDER_TRIGGER_TOKEN", ""),
		UpcomingLookaheadMin: getEnvDuration("UPCOMING_LOOKAHEAD_MIN", 40*time.Minute),
		UpcomingLookaheadMax: getEnvDuration("UPCOMING_LOOKAHEAD_MAX", 50*time.Minute),
		UpcomingDedup:        getEnvBool("UPCOMING_DEDUP", true),
		ForgottenAfter:       getEnvDuration("FORGOTTEN_AFTER", 12*time.Hour),
		ForgottenDedupWindow: getEnvDuration("FORGOTTEN_DEDUP_WINDOW", 24*time.Hour),
		SweepTimeout:         getEnvDuration("SWEEP_TIMEOUT", 2*time.Minute),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("WARN unknown timezone %q, using UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

// BotActive reports whether inbound events should be processed at all.
func (c *Config) BotActive() bool {
	return c.BotEnabled && c.ShiftBotToken != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
