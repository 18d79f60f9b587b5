package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ModelRate is the raw price of a vision model in USD per million tokens,
// before markup.
type ModelRate struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// CreditPackage is one purchasable entry of the static catalog. The catalog
// is configuration, never user data: it is read at startup and has no runtime
// mutation path.
type CreditPackage struct {
	ID              string `json:"id"`
	Credits         int64  `json:"credits"`
	PriceMinorUnits int64  `json:"price_minor_units"`
	DisplayName     string `json:"display_name"`
}

type Config struct {
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPort     string
	RedisPassword string
	JWTSecret     string

	// Billing configuration
	BillingMode      string // "count" or "tokens"
	CreditsPerCent   float64
	PricingMarkup    float64
	DefaultModel     string
	ModelRates       map[string]ModelRate
	CreditPackages   []CreditPackage
	WebhookSecret    string
	WebhookTolerance time.Duration

	// Vision analysis configuration
	VisionAPIURL    string
	VisionAPIKey    string
	VisionModel     string
	AnalysisTimeout time.Duration
	AnalysisRetries int

	// Object storage for label images
	OSSEndpoint        string
	OSSRegion          string
	OSSBucketName      string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSRoleArn         string

	// Log configuration
	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

// defaultModelRates covers the models we actually route to. Unknown models
// bill at the DefaultModel rate (see services.PricingTable).
var defaultModelRates = map[string]ModelRate{
	"gpt-4o":      {InputPerMillion: 2.5, OutputPerMillion: 10},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.6},
}

var defaultCreditPackages = []CreditPackage{
	{ID: "starter", Credits: 100, PriceMinorUnits: 499, DisplayName: "Starter"},
	{ID: "standard", Credits: 500, PriceMinorUnits: 1999, DisplayName: "Standard"},
	{ID: "pro", Credits: 2000, PriceMinorUnits: 5999, DisplayName: "Pro"},
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	rates, err := getEnvAsModelRates("MODEL_PRICING_JSON")
	if err != nil {
		return nil, err
	}

	packages, err := getEnvAsPackages("CREDIT_PACKAGES_JSON")
	if err != nil {
		return nil, err
	}

	return &Config{
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        os.Getenv("DB_PORT"),
		RedisAddr:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		BillingMode:      getEnv("BILLING_MODE", "tokens"),
		CreditsPerCent:   getEnvAsFloat("CREDITS_PER_CENT", 1),
		PricingMarkup:    getEnvAsFloat("PRICING_MARKUP", 1.3),
		DefaultModel:     getEnv("DEFAULT_MODEL", "gpt-4o"),
		ModelRates:       rates,
		CreditPackages:   packages,
		WebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		WebhookTolerance: time.Duration(getEnvAsInt("PAYMENT_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,

		VisionAPIURL:    getEnv("VISION_API_URL", "https://api.openai.com/v1/chat/completions"),
		VisionAPIKey:    os.Getenv("VISION_API_KEY"),
		VisionModel:     getEnv("VISION_MODEL", "gpt-4o"),
		AnalysisTimeout: time.Duration(getEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 60)) * time.Second,
		AnalysisRetries: getEnvAsInt("ANALYSIS_RETRIES", 1),

		OSSEndpoint:        os.Getenv("OSS_ENDPOINT"),
		OSSRegion:          os.Getenv("OSS_REGION"),
		OSSBucketName:      os.Getenv("OSS_BUCKET_NAME"),
		OSSAccessKeyID:     os.Getenv("OSS_ACCESS_KEY_ID"),
		OSSAccessKeySecret: os.Getenv("OSS_ACCESS_KEY_SECRET"),
		OSSRoleArn:         os.Getenv("OSS_ROLE_ARN"),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsModelRates(key string) (map[string]ModelRate, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultModelRates, nil
	}
	var rates map[string]ModelRate
	if err := json.Unmarshal([]byte(valueStr), &rates); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return rates, nil
}

func getEnvAsPackages(key string) ([]CreditPackage, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultCreditPackages, nil
	}
	var packages []CreditPackage
	if err := json.Unmarshal([]byte(valueStr), &packages); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return packages, nil
}
