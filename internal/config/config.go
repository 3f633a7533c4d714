package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string

	BotToken   string
	ListenAddr string

	// Referral program
	RefSalt               int64
	JoinBonusDays         int
	PaidBonusDays         int
	MaxRegistrationsPerIP int
	ReferralBaseURL       string

	// Anti-abuse
	RateLimitPerMinute int
	DuplicateTTL       time.Duration
	JournalWindow      time.Duration

	// LLM backend
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// Payments
	YookassaShopID string
	YookassaKey    string
	AllowedYooIp   []string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "aura_bot"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		RefSalt:               getEnvInt64("REF_SALT", 8349271),
		JoinBonusDays:         getEnvInt("REF_BONUS_DAYS_JOINED", 7),
		PaidBonusDays:         getEnvInt("REF_BONUS_DAYS_PAID", 7),
		MaxRegistrationsPerIP: getEnvInt("MAX_REGISTRATIONS_PER_IP", 1),
		ReferralBaseURL:       getEnv("REFERRAL_BASE_URL", "https://aura.example.com/register?code="),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		DuplicateTTL:       time.Duration(getEnvInt("DUPLICATE_TTL_SEC", 30)) * time.Second,
		JournalWindow:      time.Duration(getEnvInt("JOURNAL_WINDOW_SEC", 300)) * time.Second,

		LLMAPIKey:  getEnv("DEEPSEEK_API_KEY", ""),
		LLMBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		LLMModel:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),

		YookassaShopID: getEnv("YOOKASSA_SHOP_ID", ""),
		YookassaKey:    getEnv("YOOKASSA_SECRET_KEY", ""),
		AllowedYooIp: []string{
			"185.71.76.0/27",
			"185.71.77.0/27",
			"77.75.153.0/25",
			"77.75.156.224/28",
			"77.75.154.128/25",
			"2a02:5180::/32",
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
