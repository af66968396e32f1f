package config

import (
	"flag"
)

// Command line flags (have precedence over environment variables)
var (
	// Router flags
	flagRouterPools              = flag.String("router-pools", "", "Pool list (code:concurrency:capacity:rateLimitPerMinute;...)")
	flagRouterDefaultConcurrency = flag.Int("router-default-concurrency", 0, "Default pool concurrency")
	flagRouterMinQueueCapacity   = flag.Int("router-min-queue-capacity", 0, "Minimum pool queue capacity")
	flagRouterCapacityMultiplier = flag.Int("router-capacity-multiplier", 0, "Queue capacity multiplier over concurrency")
	flagRouterEntryTTL           = flag.Duration("router-entry-ttl", 0, "In-flight entry TTL")
	flagRouterCleanupInterval    = flag.Duration("router-cleanup-interval", 0, "Stale entry cleanup interval")
	flagRouterLeakCheckInterval  = flag.Duration("router-leak-check-interval", 0, "Registry leak check interval")
	flagRouterGroupIdleTTL       = flag.Duration("router-group-idle-ttl", 0, "Idle group eviction TTL")
	flagRouterRateLimiterCleanup = flag.Duration("router-ratelimiter-cleanup", 0, "Rate limiter bucket cleanup interval")
	flagRouterShutdownTimeout    = flag.Duration("router-shutdown-timeout", 0, "Shutdown drain time budget")
	flagRouterNoDrain            = flag.Bool("router-no-drain", false, "Hard-stop on shutdown instead of draining")

	// Mediator flags
	flagMediatorTimeout        = flag.Duration("mediator-timeout", 0, "HTTP mediation timeout")
	flagMediatorBreakerThresh  = flag.Int("mediator-breaker-threshold", 0, "Consecutive failures opening a target breaker")
	flagMediatorBreakerReset   = flag.Duration("mediator-breaker-reset-timeout", 0, "Open breaker reset timeout")
	flagMediatorUserAgent      = flag.String("mediator-user-agent", "", "HTTP mediation User-Agent")

	// SQS flags
	flagSQSEnabled     = flag.Bool("sqs-enabled", false, "Enable the SQS source")
	flagSQSQueueURL    = flag.String("sqs-queue-url", "", "SQS queue URL")
	flagSQSRegion      = flag.String("sqs-region", "", "AWS region")
	flagSQSWaitTime    = flag.Duration("sqs-wait-time", 0, "SQS long-poll wait time")
	flagSQSMaxMessages = flag.Int("sqs-max-messages", 0, "SQS receive batch size")
	flagSQSNackDelay   = flag.Int("sqs-nack-delay-seconds", 0, "Visibility delay applied on nack")

	// MQTT flags
	flagMQTTEnabled           = flag.Bool("mqtt-enabled", false, "Enable the MQTT source")
	flagMQTTBroker            = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID          = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTIntakeTopic       = flag.String("mqtt-intake-topic", "", "MQTT intake topic")
	flagMQTTRetryTopic        = flag.String("mqtt-retry-topic", "", "MQTT retry topic for nacked messages")
	flagMQTTQoS               = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout    = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout      = flag.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTMaxReconnect      = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout  = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled        = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert            = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert        = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey         = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip   = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")

	// Redis flags
	flagRedisEnabled      = flag.Bool("redis-enabled", false, "Enable the Redis stream source")
	flagRedisAddress      = flag.String("redis-address", "", "Redis address")
	flagRedisStream       = flag.String("redis-stream", "", "Redis stream name")
	flagRedisGroup        = flag.String("redis-group", "", "Redis consumer group")
	flagRedisConsumer     = flag.String("redis-consumer", "", "Redis consumer name")
	flagRedisBatchSize    = flag.Int("redis-batch-size", 0, "Redis batch size")
	flagRedisBlockTimeout = flag.Duration("redis-block-timeout", 0, "Redis block timeout")
	flagRedisClaimIdle    = flag.Duration("redis-claim-idle", 0, "Redis claim idle time")
	flagRedisClaimTick    = flag.Duration("redis-claim-tick", 0, "Redis claim loop interval")
	flagRedisDialTimeout  = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout  = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout  = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// Telemetry flags
	flagTelemetryEnabled        = flag.Bool("telemetry-enabled", false, "Enable OTLP metrics export")
	flagTelemetryEndpoint       = flag.String("telemetry-endpoint", "", "OTLP gRPC endpoint")
	flagTelemetryServiceName    = flag.String("telemetry-service-name", "", "Telemetry service name")
	flagTelemetryExportInterval = flag.Duration("telemetry-export-interval", 0, "Metric export interval")
)

// applyRouterFlags applies command line flags to router configuration
func applyRouterFlags(cfg *RouterConfig) {
	if *flagRouterPools != "" {
		cfg.Pools = *flagRouterPools
	}
	if *flagRouterDefaultConcurrency != 0 {
		cfg.DefaultConcurrency = *flagRouterDefaultConcurrency
	}
	if *flagRouterMinQueueCapacity != 0 {
		cfg.MinQueueCapacity = *flagRouterMinQueueCapacity
	}
	if *flagRouterCapacityMultiplier != 0 {
		cfg.CapacityMultiplier = *flagRouterCapacityMultiplier
	}
	if *flagRouterEntryTTL != 0 {
		cfg.EntryTTL = *flagRouterEntryTTL
	}
	if *flagRouterCleanupInterval != 0 {
		cfg.CleanupInterval = *flagRouterCleanupInterval
	}
	if *flagRouterLeakCheckInterval != 0 {
		cfg.LeakCheckInterval = *flagRouterLeakCheckInterval
	}
	if *flagRouterGroupIdleTTL != 0 {
		cfg.GroupIdleTTL = *flagRouterGroupIdleTTL
	}
	if *flagRouterRateLimiterCleanup != 0 {
		cfg.RateLimiterCleanup = *flagRouterRateLimiterCleanup
	}
	if *flagRouterShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagRouterShutdownTimeout
	}
	if *flagRouterNoDrain {
		cfg.DrainOnShutdown = false
	}
}

// applyMediatorFlags applies command line flags to mediator configuration
func applyMediatorFlags(cfg *MediatorConfig) {
	if *flagMediatorTimeout != 0 {
		cfg.Timeout = *flagMediatorTimeout
	}
	if *flagMediatorBreakerThresh != 0 {
		cfg.BreakerThreshold = *flagMediatorBreakerThresh
	}
	if *flagMediatorBreakerReset != 0 {
		cfg.BreakerResetTimeout = *flagMediatorBreakerReset
	}
	if *flagMediatorUserAgent != "" {
		cfg.UserAgent = *flagMediatorUserAgent
	}
}

// applySQSFlags applies command line flags to SQS configuration
func applySQSFlags(cfg *SQSConfig) {
	if *flagSQSEnabled {
		cfg.Enabled = true
	}
	if *flagSQSQueueURL != "" {
		cfg.QueueURL = *flagSQSQueueURL
	}
	if *flagSQSRegion != "" {
		cfg.Region = *flagSQSRegion
	}
	if *flagSQSWaitTime != 0 {
		cfg.WaitTime = *flagSQSWaitTime
	}
	if *flagSQSMaxMessages != 0 {
		cfg.MaxMessages = *flagSQSMaxMessages
	}
	if *flagSQSNackDelay != 0 {
		cfg.NackDelaySeconds = *flagSQSNackDelay
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTIntakeTopic != "" {
		cfg.IntakeTopic = *flagMQTTIntakeTopic
	}
	if *flagMQTTRetryTopic != "" {
		cfg.RetryTopic = *flagMQTTRetryTopic
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTEnabled {
		cfg.Enabled = true
	}
	if *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTDisconnectTimeout != 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout) // #nosec G115 - config values are non-negative
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTWriteTimeout != 0 {
		cfg.WriteTimeout = *flagMQTTWriteTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if *flagMQTTTLSEnabled {
		cfg.TLSEnabled = true
	}
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
	if *flagMQTTTLSInsecureSkip {
		cfg.InsecureSkip = true
	}
}

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	applyRedisFlagStrings(cfg)
	applyRedisFlagTimeouts(cfg)
}

func applyRedisFlagStrings(cfg *RedisConfig) {
	if *flagRedisEnabled {
		cfg.Enabled = true
	}
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisStream != "" {
		cfg.Stream = *flagRedisStream
	}
	if *flagRedisGroup != "" {
		cfg.Group = *flagRedisGroup
	}
	if *flagRedisConsumer != "" {
		cfg.Consumer = *flagRedisConsumer
	}
	if *flagRedisBatchSize != 0 {
		cfg.BatchSize = *flagRedisBatchSize
	}
}

func applyRedisFlagTimeouts(cfg *RedisConfig) {
	if *flagRedisBlockTimeout != 0 {
		cfg.BlockTimeout = *flagRedisBlockTimeout
	}
	if *flagRedisClaimIdle != 0 {
		cfg.ClaimIdle = *flagRedisClaimIdle
	}
	if *flagRedisClaimTick != 0 {
		cfg.ClaimTick = *flagRedisClaimTick
	}
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyTelemetryFlags applies command line flags to telemetry configuration
func applyTelemetryFlags(cfg *TelemetryConfig) {
	if *flagTelemetryEnabled {
		cfg.Enabled = true
	}
	if *flagTelemetryEndpoint != "" {
		cfg.Endpoint = *flagTelemetryEndpoint
	}
	if *flagTelemetryServiceName != "" {
		cfg.ServiceName = *flagTelemetryServiceName
	}
	if *flagTelemetryExportInterval != 0 {
		cfg.ExportInterval = *flagTelemetryExportInterval
	}
}
