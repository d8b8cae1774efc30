package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed sources accepted in FEED_SOURCE.
const (
	FeedSourceStream = "stream"
	FeedSourceLocal  = "local"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort   string
	AppEnv    string
	AppOrigin string // origin of the dashboard, used for deep links and worker client matching

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// Push is disabled when either VAPID key is empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
	PushTTL         int
	PushConcurrency int
	SNSRegion       string
	// DispatchPush runs the push dispatcher in this process. Every dispatching
	// instance sends its own copy of each push, so enable it on one instance only.
	DispatchPush bool

	FeedSource       string
	FeedPollInterval time.Duration
	FeedBuffer       int

	// Hard deadline for a single push worker event.
	WorkerExtendLifetime time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications     string
	PushSubscriptions string
	Preferences       string
	Counters          string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AppOrigin:      getEnv("APP_ORIGIN", "http://localhost:5173"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications:     getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			PushSubscriptions: getEnv("DYNAMO_TABLE_PUSH_SUBSCRIPTIONS", "push_subscriptions"),
			Preferences:       getEnv("DYNAMO_TABLE_NOTIFICATION_PREFERENCES", "notification_preferences"),
			Counters:          getEnv("DYNAMO_TABLE_COUNTERS", "counters"),
		},
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", "mailto:noreply@example.com"),
		PushTTL:         getEnvInt("PUSH_TTL_SECONDS", 86400),
		PushConcurrency: getEnvInt("PUSH_CONCURRENCY", 8),
		SNSRegion:       getEnv("SNS_REGION", "us-east-1"),
		DispatchPush:    getEnvBool("PUSH_DISPATCH", true),

		FeedSource:       strings.ToLower(getEnv("FEED_SOURCE", FeedSourceLocal)),
		FeedPollInterval: getEnvDuration("FEED_POLL_INTERVAL", time.Second),
		FeedBuffer:       getEnvInt("FEED_BUFFER", 64),

		WorkerExtendLifetime: getEnvDuration("WORKER_EXTEND_LIFETIME", 30*time.Second),
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// PushConfigured reports whether a VAPID key pair is available.
func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// PushPublicKey is the VAPID public key advertised to browsers. It is empty
// unless the full key pair is configured, so clients never subscribe to a
// server that cannot send.
func (c *Config) PushPublicKey() string {
	if !c.PushConfigured() {
		return ""
	}
	return c.VAPIDPublicKey
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
