package config

import (
	"os"
	"strconv"
	"time"
)

// loadRouterFromEnv loads router configuration from environment variables
func loadRouterFromEnv(cfg *RouterConfig) {
	if v := getEnvString("ROUTER_POOLS"); v != "" {
		cfg.Pools = v
	}
	if v := getEnvInt("ROUTER_DEFAULT_CONCURRENCY"); v != 0 {
		cfg.DefaultConcurrency = v
	}
	if v := getEnvInt("ROUTER_MIN_QUEUE_CAPACITY"); v != 0 {
		cfg.MinQueueCapacity = v
	}
	if v := getEnvInt("ROUTER_CAPACITY_MULTIPLIER"); v != 0 {
		cfg.CapacityMultiplier = v
	}
	if v := getEnvDuration("ROUTER_ENTRY_TTL"); v != 0 {
		cfg.EntryTTL = v
	}
	if v := getEnvDuration("ROUTER_CLEANUP_INTERVAL"); v != 0 {
		cfg.CleanupInterval = v
	}
	if v := getEnvDuration("ROUTER_LEAK_CHECK_INTERVAL"); v != 0 {
		cfg.LeakCheckInterval = v
	}
	if v := getEnvDuration("ROUTER_GROUP_IDLE_TTL"); v != 0 {
		cfg.GroupIdleTTL = v
	}
	if v := getEnvDuration("ROUTER_RATELIMITER_CLEANUP"); v != 0 {
		cfg.RateLimiterCleanup = v
	}
	if v := getEnvDuration("ROUTER_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
	if os.Getenv("ROUTER_DRAIN_ON_SHUTDOWN") == "false" {
		cfg.DrainOnShutdown = false
	}
}

// loadMediatorFromEnv loads mediator configuration from environment variables
func loadMediatorFromEnv(cfg *MediatorConfig) {
	if v := getEnvDuration("MEDIATOR_TIMEOUT"); v != 0 {
		cfg.Timeout = v
	}
	if v := getEnvInt("MEDIATOR_BREAKER_THRESHOLD"); v != 0 {
		cfg.BreakerThreshold = v
	}
	if v := getEnvDuration("MEDIATOR_BREAKER_RESET_TIMEOUT"); v != 0 {
		cfg.BreakerResetTimeout = v
	}
	if v := getEnvString("MEDIATOR_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
}

// loadSQSFromEnv loads SQS configuration from environment variables
func loadSQSFromEnv(cfg *SQSConfig) {
	if v := getEnvBool("SQS_ENABLED"); v {
		cfg.Enabled = v
	}
	if v := getEnvString("SQS_QUEUE_URL"); v != "" {
		cfg.QueueURL = v
	}
	if v := getEnvString("SQS_REGION"); v != "" {
		cfg.Region = v
	}
	if v := getEnvDuration("SQS_WAIT_TIME"); v != 0 {
		cfg.WaitTime = v
	}
	if v := getEnvInt("SQS_MAX_MESSAGES"); v != 0 {
		cfg.MaxMessages = v
	}
	if v := getEnvInt("SQS_NACK_DELAY_SECONDS"); v != 0 {
		cfg.NackDelaySeconds = v
	}
}

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_INTAKE_TOPIC"); v != "" {
		cfg.IntakeTopic = v
	}
	if v := getEnvString("MQTT_RETRY_TOPIC"); v != "" {
		cfg.RetryTopic = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v := getEnvBool("MQTT_ENABLED"); v {
		cfg.Enabled = v
	}
	if v := getEnvInt("MQTT_QOS"); v != 0 && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v != 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - config values are non-negative
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if v := getEnvBool("MQTT_TLS_ENABLED"); v {
		cfg.TLSEnabled = v
	}
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
	if v := getEnvBool("MQTT_TLS_INSECURE_SKIP"); v {
		cfg.InsecureSkip = v
	}
}

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	if v := getEnvBool("REDIS_ENABLED"); v {
		cfg.Enabled = v
	}
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_STREAM"); v != "" {
		cfg.Stream = v
	}
	if v := getEnvString("REDIS_GROUP"); v != "" {
		cfg.Group = v
	}
	if v := getEnvString("REDIS_CONSUMER"); v != "" {
		cfg.Consumer = v
	}
	if v := getEnvInt("REDIS_BATCH_SIZE"); v != 0 {
		cfg.BatchSize = v
	}
	loadRedisTimeouts(cfg)
}

func loadRedisTimeouts(cfg *RedisConfig) {
	if v := getEnvDuration("REDIS_BLOCK_TIMEOUT"); v != 0 {
		cfg.BlockTimeout = v
	}
	if v := getEnvDuration("REDIS_CLAIM_IDLE"); v != 0 {
		cfg.ClaimIdle = v
	}
	if v := getEnvDuration("REDIS_CLAIM_TICK"); v != 0 {
		cfg.ClaimTick = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadTelemetryFromEnv loads telemetry configuration from environment variables
func loadTelemetryFromEnv(cfg *TelemetryConfig) {
	if v := getEnvBool("TELEMETRY_ENABLED"); v {
		cfg.Enabled = v
	}
	if v := getEnvString("TELEMETRY_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getEnvString("TELEMETRY_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := getEnvDuration("TELEMETRY_EXPORT_INTERVAL"); v != 0 {
		cfg.ExportInterval = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	return value == "true"
}
