package config

import (
	"strings"
	"time"

	"ecolisting-chat-backend/internal/env"
)

// Config holds the settings shared by all three servers.
type Config struct {
	AWSRegion        string
	AWSID            string
	AWSSecret        string
	AWSToken         string
	DynamoDBEndpoint string

	SessionSecret string

	RedisURL        string
	RedisPass       string
	RealtimeBackend string // "redis" or "memory"
	StorageBackend  string // "dynamodb" or "memory"

	AllowedOrigins []string

	FunctionsURL     string
	FunctionsAnonKey string
	PublicWebURL     string

	AutoReplyLookback  time.Duration
	PolicyTimeout      time.Duration
	AutoReplyTimeout   time.Duration
	NotifyTimeout      time.Duration
	AutoReplyPerMinute int
	RoleCacheTTL       time.Duration
	HistoryLimit       int

	WorkerCount int
	QueueSize   int
	LogMode     string
}

func Load() *Config {
	return &Config{
		AWSRegion:        env.GetOrDefault(env.AWSRegion, "eu-central-1"),
		AWSID:            env.Get(env.AWSID),
		AWSSecret:        env.Get(env.AWSSecret),
		AWSToken:         env.Get(env.AWSToken),
		DynamoDBEndpoint: env.Get(env.DynamoDBEndpoint),

		SessionSecret: env.Get(env.SessionSecretKey),

		RedisURL:        env.GetOrDefault(env.ChatRedisURL, "localhost:6379"),
		RedisPass:       env.Get(env.ChatRedisPass),
		RealtimeBackend: strings.ToLower(env.GetOrDefault(env.RealtimeBackend, "redis")),
		StorageBackend:  strings.ToLower(env.GetOrDefault(env.StorageBackend, "dynamodb")),

		AllowedOrigins: splitList(env.Get(env.CORSOrigins)),

		FunctionsURL:     strings.TrimRight(env.Get(env.FunctionsURL), "/"),
		FunctionsAnonKey: env.Get(env.FunctionsAnonKey),
		PublicWebURL:     env.GetOrDefault(env.WebUrl, "http://localhost:3000/chat"),

		AutoReplyLookback:  env.GetDuration(env.AutoReplyLookback, 120*time.Second),
		PolicyTimeout:      env.GetDuration(env.PolicyTimeout, 3*time.Second),
		AutoReplyTimeout:   env.GetDuration(env.AutoReplyTimeout, 20*time.Second),
		NotifyTimeout:      env.GetDuration(env.NotifyTimeout, 10*time.Second),
		AutoReplyPerMinute: env.GetInt(env.AutoReplyPerMinute, 6),
		RoleCacheTTL:       env.GetDuration(env.RoleCacheTTL, 5*time.Minute),
		HistoryLimit:       env.GetInt(env.HistoryLimit, 200),

		WorkerCount: env.GetInt(env.WorkerCount, 10),
		QueueSize:   env.GetInt(env.QueueSize, 100),
		LogMode:     env.GetOrDefault(env.LogMode, "development"),
	}
}

// RequiredKeys lists the variables a server cannot start without.
func RequiredKeys() []string {
	return []string{
		env.AWSRegion,
		env.SessionSecretKey,
		env.ChatRedisURL,
		env.FunctionsURL,
	}
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
