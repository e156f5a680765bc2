package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AWSRegion          = "AWS_REGION"
	AWSID              = "AWS_ID"
	AWSSecret          = "AWS_SECRET"
	AWSToken           = "AWS_TOKEN"
	DynamoDBEndpoint   = "DYNAMODB_ENDPOINT"
	SessionSecretKey   = "SESSION_SECRET"
	ChatRedisURL       = "CHAT_REDIS_URL"
	ChatRedisPass      = "CHAT_REDIS_PASS"
	RealtimeBackend    = "REALTIME_BACKEND"
	StorageBackend     = "STORAGE_BACKEND"
	CORSOrigins        = "CORS_ORIGINS"
	NotifyTimeout      = "NOTIFY_TIMEOUT"
	FunctionsURL       = "FUNCTIONS_URL"
	FunctionsAnonKey   = "FUNCTIONS_ANON_KEY"
	WebUrl             = "WEB_URL"
	AutoReplyLookback  = "AUTOREPLY_LOOKBACK"
	PolicyTimeout      = "POLICY_TIMEOUT"
	AutoReplyTimeout   = "AUTOREPLY_TIMEOUT"
	AutoReplyPerMinute = "AUTOREPLY_PER_MINUTE"
	RoleCacheTTL       = "ROLE_CACHE_TTL"
	HistoryLimit       = "HISTORY_LIMIT"
	WorkerCount        = "WORKER_COUNT"
	QueueSize          = "QUEUE_SIZE"
	LogMode            = "LOG_MODE"
)

// Load reads a .env file from the working directory when present.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("env: load %s: %w", f, err)
		}
	}
	return nil
}

// Require reports the first listed variable that is unset.
func Require(keys ...string) error {
	for _, key := range keys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			return fmt.Errorf("env: required environment variable not set: %s", key)
		}
	}
	return nil
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// GetDuration accepts Go duration strings ("90s") or a bare number of seconds.
func GetDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
