package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all app configuration.
type Config struct {
	// Server
	HTTPPort string

	// Aggregation target
	ProductID    int64
	MainCurrency string

	// PostgreSQL (marketplace backend)
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis (snapshot cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse (analytics archive, optional)
	ClickhouseAddr     string
	ClickhouseUsername string
	ClickhousePassword string
	ClickhouseTimeout  int

	// Kafka (realtime change feed)
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string
	KafkaBatchSize     int
	KafkaBatchTimeout  int // milliseconds

	// Exchange rates
	RatesURL      string
	RatesInterval int // minutes

	// App settings
	EventBufferSize int
	Debug           bool
}

// LoadConfig loads configuration from environment variables, with an
// optional .env file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		ProductID:    int64(getEnvAsInt("PRODUCT_ID", 1)),
		MainCurrency: getEnv("MAIN_CURRENCY", "USD"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "mercado"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "mercadosocial"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ClickhouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", ""),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseTimeout:  getEnvAsInt("CLICKHOUSE_TIMEOUT", 10),

		KafkaBrokers:       getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}, ","),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "market-changes"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "mercadosocial-group"),
		KafkaBatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 500),
		KafkaBatchTimeout:  getEnvAsInt("KAFKA_BATCH_TIMEOUT", 3000),

		RatesURL:      getEnv("RATES_URL", ""),
		RatesInterval: getEnvAsInt("RATES_INTERVAL_MINUTES", 60),

		EventBufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 10000),
		Debug:           getEnvAsBool("DEBUG", false),
	}
}

// Helper functions for parsing environment variables

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	return strings.Split(valStr, sep)
}
