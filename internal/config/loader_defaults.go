package config

import "time"

// defaultRouterConfig returns the default router configuration
func defaultRouterConfig() RouterConfig {
	return RouterConfig{
		Pools:              "DEFAULT-POOL:20:50:0",
		DefaultConcurrency: 20,
		MinQueueCapacity:   50,
		CapacityMultiplier: 2,
		EntryTTL:           1 * time.Hour,
		CleanupInterval:    5 * time.Minute,
		LeakCheckInterval:  30 * time.Second,
		GroupIdleTTL:       5 * time.Minute,
		RateLimiterCleanup: 5 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		DrainOnShutdown:    true,
	}
}

// defaultMediatorConfig returns the default HTTP mediator configuration
func defaultMediatorConfig() MediatorConfig {
	return MediatorConfig{
		Timeout:             30 * time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
		UserAgent:           "dispatch-router/1.0",
	}
}

// defaultSQSConfig returns the default SQS source configuration
func defaultSQSConfig() SQSConfig {
	return SQSConfig{
		Enabled:          false,
		QueueURL:         "",
		Region:           "eu-west-1",
		WaitTime:         20 * time.Second,
		MaxMessages:      10,
		NackDelaySeconds: 30,
	}
}

// defaultMQTTConfig returns the default MQTT source configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:              false,
		Broker:               "tcp://localhost:1883",
		ClientID:             "dispatch-router",
		IntakeTopic:          "dispatch/pointers",
		RetryTopic:           "dispatch/pointers/retry",
		QoS:                  1,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         30 * time.Second,
		MaxReconnectInterval: 10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
		TLSEnabled:           false,
		CACert:               "",
		ClientCert:           "",
		ClientKey:            "",
		InsecureSkip:         false,
	}
}

// defaultRedisConfig returns the default Redis source configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Address:      "localhost:6379",
		Stream:       "dispatch-stream",
		Group:        "dispatch-router",
		Consumer:     "consumer-1",
		BatchSize:    100,
		BlockTimeout: 5 * time.Second,
		ClaimIdle:    30 * time.Second,
		ClaimTick:    30 * time.Second,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// defaultTelemetryConfig returns the default telemetry configuration
func defaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		ServiceName:    "dispatch-router",
		ExportInterval: 15 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Router:    defaultRouterConfig(),
		Mediator:  defaultMediatorConfig(),
		SQS:       defaultSQSConfig(),
		MQTT:      defaultMQTTConfig(),
		Redis:     defaultRedisConfig(),
		Telemetry: defaultTelemetryConfig(),
	}
}
