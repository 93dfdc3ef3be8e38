package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`
	// MySQL holds messages and the users directory
	Database DatabaseConfig `json:"database"`
	// MongoDB GridFS holds uploaded images
	MongoDB MongoDBConfig `json:"mongodb"`
	// Redis backs the last-seen cache (optional)
	Redis RedisConfig `json:"redis"`

	Auth AuthConfig `json:"auth"`
	Chat ChatConfig `json:"chat"`

	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port            string   `json:"port"`
	GRPCPort        string   `json:"grpc_port"`
	MediaServerPort string   `json:"media_server_port"`
	Host            string   `json:"host"`
	ReadTimeout     int      `json:"read_timeout"`
	WriteTimeout    int      `json:"write_timeout"`
	Environment     string   `json:"environment"` // development, staging, production
	MediaBaseURL    string   `json:"media_base_url"`
	MaxBodyBytes    int64    `json:"max_body_bytes"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type MongoDBConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Bucket   string `json:"bucket"`
}

type RedisConfig struct {
	URL         string        `json:"url"`
	Enabled     bool          `json:"enabled"`
	LastSeenTTL time.Duration `json:"last_seen_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `json:"-"`
	TokenTTL  time.Duration `json:"token_ttl"`
	Issuer    string        `json:"issuer"`
}

// ChatConfig tunes live connections
type ChatConfig struct {
	SendBuffer      int           `json:"send_buffer"`
	WriteWait       time.Duration `json:"write_wait"`
	PongWait        time.Duration `json:"pong_wait"`
	MaxMessageBytes int64         `json:"max_message_bytes"`
}

// PingPeriod must stay below PongWait.
func (c ChatConfig) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, console
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("CHAT_SERVICE_PORT", "8080"),
			GRPCPort:        getEnv("CHAT_GRPC_PORT", "7003"),
			MediaServerPort: getEnv("MEDIA_SERVER_PORT", "8090"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:    getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:     getEnv("APP_ENV", "development"),
			MaxBodyBytes:    int64(getEnvAsInt("MAX_BODY_BYTES", 4<<20)),
			AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		},
		Database: DatabaseConfig{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "quickchat"),
			Password:     getEnv("MYSQL_PASSWORD", "quickchat123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "quickchat"),
			MaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoDBConfig{
			Host:     getEnv("MONGO_HOST", "localhost"),
			Port:     getEnv("MONGO_PORT", "27017"),
			Username: getEnv("MONGO_USERNAME", "admin"),
			Password: getEnv("MONGO_PASSWORD", "admin123"),
			Database: getEnv("MONGO_DATABASE", "quickchat"),
			Bucket:   getEnv("MONGO_MEDIA_BUCKET", "media_files"),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Enabled:     getEnvAsBool("REDIS_ENABLED", false),
			LastSeenTTL: getEnvAsDuration("LAST_SEEN_TTL", 30*24*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "quickchat"),
		},
		Chat: ChatConfig{
			SendBuffer:      getEnvAsInt("CHAT_SEND_BUFFER", 256),
			WriteWait:       getEnvAsDuration("CHAT_WRITE_WAIT", 10*time.Second),
			PongWait:        getEnvAsDuration("CHAT_PONG_WAIT", 60*time.Second),
			MaxMessageBytes: int64(getEnvAsInt("CHAT_MAX_MESSAGE_BYTES", 4096)),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	cfg.Server.MediaBaseURL = getEnv("MEDIA_BASE_URL",
		fmt.Sprintf("http://localhost:%s/media/", cfg.Server.MediaServerPort))

	return cfg
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.Username == "" || cfg.MongoDB.Password == "" {
		return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
		cfg.MongoDB.Username,
		cfg.MongoDB.Password,
		cfg.MongoDB.Host,
		cfg.MongoDB.Port,
		cfg.MongoDB.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
