package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRouter(&cfg.Router); err != nil {
		return err
	}
	if err := validateMediator(&cfg.Mediator); err != nil {
		return err
	}
	if err := validateSQS(&cfg.SQS); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	return validateRedis(&cfg.Redis)
}

// validateRouter validates router configuration
func validateRouter(cfg *RouterConfig) error {
	if len(cfg.PoolSpecs) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	if cfg.DefaultConcurrency < 1 {
		return fmt.Errorf("router default concurrency must be positive")
	}
	if cfg.MinQueueCapacity < 1 {
		return fmt.Errorf("router minimum queue capacity must be positive")
	}
	if cfg.CapacityMultiplier < 1 {
		return fmt.Errorf("router capacity multiplier must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("router shutdown timeout must be positive")
	}
	return nil
}

// validateMediator validates mediator configuration
func validateMediator(cfg *MediatorConfig) error {
	if cfg.Timeout <= 0 {
		return fmt.Errorf("mediator timeout must be positive")
	}
	if cfg.BreakerThreshold < 1 {
		return fmt.Errorf("mediator breaker threshold must be positive")
	}
	return nil
}

// validateSQS validates SQS configuration (only when the source is enabled)
func validateSQS(cfg *SQSConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.QueueURL == "" {
		return fmt.Errorf("sqs queue URL cannot be empty")
	}
	if cfg.Region == "" {
		return fmt.Errorf("sqs region cannot be empty")
	}
	if cfg.MaxMessages < 1 || cfg.MaxMessages > 10 {
		return fmt.Errorf("sqs max messages must be between 1 and 10")
	}
	return nil
}

// validateMQTT validates MQTT configuration (only when the source is enabled)
func validateMQTT(cfg *MQTTConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.IntakeTopic == "" {
		return fmt.Errorf("mqtt intake topic cannot be empty")
	}
	if cfg.RetryTopic == "" {
		return fmt.Errorf("mqtt retry topic cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt QoS must be 0, 1 or 2")
	}
	return nil
}

// validateRedis validates Redis configuration (only when the source is enabled)
func validateRedis(cfg *RedisConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Consumer == "" {
		return fmt.Errorf("redis consumer name cannot be empty")
	}
	if cfg.Stream == "" {
		return fmt.Errorf("redis stream cannot be empty")
	}
	if cfg.Group == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("redis batch size must be positive")
	}
	return nil
}
