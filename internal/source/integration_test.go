package source

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ibs-source/dispatch/router/golang/internal/config"
	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// Integration tests need live backends; they are gated on the environment so
// the unit suite stays self-contained.

func TestIntegration_RedisSource(t *testing.T) {
	addr := os.Getenv("REDIS_INTEGRATION_ADDRESS")
	if addr == "" {
		t.Skip("Skipping: set REDIS_INTEGRATION_ADDRESS to run against a live Redis")
	}

	cfg := &config.RedisConfig{
		Enabled:      true,
		Address:      addr,
		Stream:       "dispatch-integration",
		Group:        "dispatch-router",
		Consumer:     "integration-test",
		BatchSize:    10,
		BlockTimeout: time.Second,
		ClaimIdle:    30 * time.Second,
		ClaimTick:    30 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingTimeout:  5 * time.Second,
	}

	intake := &fakeIntake{accept: true}
	src, err := NewRedis(cfg, intake, warning.Noop{}, log.New())
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := src.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestIntegration_MQTTSource(t *testing.T) {
	broker := os.Getenv("MQTT_INTEGRATION_BROKER")
	if broker == "" {
		t.Skip("Skipping: set MQTT_INTEGRATION_BROKER to run against a live broker")
	}

	cfg := &config.MQTTConfig{
		Enabled:              true,
		Broker:               broker,
		ClientID:             "dispatch-integration-test",
		IntakeTopic:          "dispatch/integration/pointers",
		RetryTopic:           "dispatch/integration/pointers/retry",
		QoS:                  1,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectInterval: 10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
	}

	intake := &fakeIntake{accept: true}
	src, err := NewMQTT(cfg, intake, warning.Noop{}, log.New())
	if err != nil {
		t.Fatalf("NewMQTT() error = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := src.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
