package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key"

// SeedAccount is an account preloaded into the in-memory account directory.
type SeedAccount struct {
	ID          string
	AccountType string
}

type Config struct {
	ServerPort  string
	Environment string

	StoreDriver             string
	FirebaseProject         string
	FirebaseCredentialsJSON string
	FirebaseCredentialsPath string
	DatabaseURL             string
	StorageBucket           string

	AuthDriver string
	JWTSecret  string
	JWTExpiry  int64
	JWKSURL    string

	PresenceDriver        string
	PresenceTTL           time.Duration
	PresenceSweepInterval time.Duration
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	NATSURL           string
	NATSSubjectPrefix string

	SupportedLanguages []string
	TranslationTimeout time.Duration

	WSHandshakeTimeout time.Duration
	WSJoinMarksRead    bool
	WSSendBuffer       int
	AllowedOrigins     []string

	SeedAccounts []SeedAccount

	LogPath          string
	LogLevel         string
	LogMaxAgeDays    int
	LogRotationHours int
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func Load() (*Config, error) {
	godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := os.Getenv("CONFIG_PATH"); dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	config := &Config{
		ServerPort:  v.GetString("SERVER_PORT"),
		Environment: v.GetString("ENVIRONMENT"),

		StoreDriver:             strings.ToLower(v.GetString("STORE_DRIVER")),
		FirebaseProject:         v.GetString("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsJSON: v.GetString("FIREBASE_SERVICE_ACCOUNT_JSON"),
		FirebaseCredentialsPath: v.GetString("FIREBASE_SERVICE_ACCOUNT_PATH"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		StorageBucket:           v.GetString("STORAGE_BUCKET"),

		AuthDriver: strings.ToLower(v.GetString("AUTH_DRIVER")),
		JWTSecret:  v.GetString("JWT_SECRET"),
		JWTExpiry:  v.GetInt64("JWT_EXPIRY"),
		JWKSURL:    v.GetString("JWKS_URL"),

		PresenceDriver:        strings.ToLower(v.GetString("PRESENCE_DRIVER")),
		PresenceTTL:           v.GetDuration("PRESENCE_TTL"),
		PresenceSweepInterval: v.GetDuration("PRESENCE_SWEEP_INTERVAL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),

		NATSURL:           v.GetString("NATS_URL"),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),

		SupportedLanguages: splitList(v.GetString("SUPPORTED_LANGUAGES")),
		TranslationTimeout: v.GetDuration("TRANSLATION_TIMEOUT"),

		WSHandshakeTimeout: v.GetDuration("WS_HANDSHAKE_TIMEOUT"),
		WSJoinMarksRead:    v.GetBool("WS_JOIN_MARKS_READ"),
		WSSendBuffer:       v.GetInt("WS_SEND_BUFFER"),
		AllowedOrigins:     splitList(v.GetString("ALLOWED_ORIGINS")),

		LogPath:          v.GetString("LOG_PATH"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogMaxAgeDays:    v.GetInt("LOG_MAX_AGE_DAYS"),
		LogRotationHours: v.GetInt("LOG_ROTATION_HOURS"),
	}

	seeds, err := parseSeedAccounts(v.GetString("SEED_ACCOUNTS"))
	if err != nil {
		return nil, err
	}
	config.SeedAccounts = seeds

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("AUTH_DRIVER", "jwt")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRY", 24*60*60) // 24 hours
	v.SetDefault("PRESENCE_DRIVER", "memory")
	v.SetDefault("PRESENCE_TTL", 5*time.Minute)
	v.SetDefault("PRESENCE_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NATS_SUBJECT_PREFIX", "marketchat")
	v.SetDefault("SUPPORTED_LANGUAGES", "en,fr,ar")
	v.SetDefault("TRANSLATION_TIMEOUT", 2*time.Second)
	v.SetDefault("WS_HANDSHAKE_TIMEOUT", 10*time.Second)
	v.SetDefault("WS_JOIN_MARKS_READ", true)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("SEED_ACCOUNTS", "buyer-1:buyer,seller-1:seller,agent-1:delivery_agent,sales-1:commercial_agent,mod-1:moderator,admin-1:admin")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("LOG_ROTATION_HOURS", 24)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "memory":
	case "firestore":
		if c.FirebaseProject == "" {
			return fmt.Errorf("STORE_DRIVER=firestore requires FIREBASE_PROJECT_ID")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AuthDriver {
	case "jwt":
		if !c.IsDevelopment() && c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set outside development")
		}
	case "firebase":
		if c.FirebaseProject == "" {
			return fmt.Errorf("AUTH_DRIVER=firebase requires FIREBASE_PROJECT_ID")
		}
	case "jwks":
		if c.JWKSURL == "" {
			return fmt.Errorf("AUTH_DRIVER=jwks requires JWKS_URL")
		}
	default:
		return fmt.Errorf("unknown AUTH_DRIVER %q", c.AuthDriver)
	}

	switch c.PresenceDriver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown PRESENCE_DRIVER %q", c.PresenceDriver)
	}

	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be positive")
	}
	if c.WSSendBuffer <= 0 {
		c.WSSendBuffer = 256
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSeedAccounts reads "id:type,id:type". The type is checked later
// against the account directory.
func parseSeedAccounts(raw string) ([]SeedAccount, error) {
	var out []SeedAccount
	for _, item := range splitList(raw) {
		id, accountType, ok := strings.Cut(item, ":")
		id, accountType = strings.TrimSpace(id), strings.TrimSpace(accountType)
		if !ok || id == "" || accountType == "" {
			return nil, fmt.Errorf("invalid SEED_ACCOUNTS entry %q, want id:type", item)
		}
		out = append(out, SeedAccount{ID: id, AccountType: strings.ToLower(accountType)})
	}
	return out, nil
}
