// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Router    RouterConfig
	Mediator  MediatorConfig
	SQS       SQSConfig
	MQTT      MQTTConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

// PoolSpec is one processing pool definition parsed from the pool list.
type PoolSpec struct {
	Code               string
	Concurrency        int
	QueueCapacity      int
	RateLimitPerMinute int
}

// RouterConfig holds intake-router and pool-scheduling settings
type RouterConfig struct {
	// Pools is the raw pool list, format
	// "code:concurrency:queueCapacity:rateLimitPerMinute;code2:..."
	// (trailing parts optional per pool).
	Pools string
	// PoolSpecs is populated from Pools during runtime validation.
	PoolSpecs []PoolSpec

	DefaultConcurrency   int
	MinQueueCapacity     int
	CapacityMultiplier   int
	EntryTTL             time.Duration
	CleanupInterval      time.Duration
	LeakCheckInterval    time.Duration
	GroupIdleTTL         time.Duration
	RateLimiterCleanup   time.Duration
	ShutdownTimeout      time.Duration
	DrainOnShutdown      bool
}

// MediatorConfig holds HTTP mediation settings
type MediatorConfig struct {
	Timeout             time.Duration
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
	UserAgent           string
}

// SQSConfig holds the SQS source configuration
type SQSConfig struct {
	Enabled          bool
	QueueURL         string
	Region           string
	WaitTime         time.Duration
	MaxMessages      int
	NackDelaySeconds int
}

// MQTTConfig holds the MQTT source configuration (ActiveMQ MQTT listener)
type MQTTConfig struct {
	Broker               string
	Enabled              bool
	ClientID             string
	IntakeTopic          string
	RetryTopic           string
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	MaxReconnectInterval time.Duration
	SubscribeTimeout     time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled   bool
	CACert       string
	ClientCert   string
	ClientKey    string
	InsecureSkip bool
}

// RedisConfig holds the Redis stream source configuration
type RedisConfig struct {
	Enabled      bool
	Address      string
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
	ClaimTick    time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// TelemetryConfig holds the OTLP metrics exporter settings
type TelemetryConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ExportInterval time.Duration
}
