package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ibs-source/dispatch/router/golang/internal/config"
	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// MQTT consumes pointers from an intake topic. The broker forgets a message
// once delivered, so ack is a no-op and nack republishes the original payload
// to the retry topic.
type MQTT struct {
	client            mqtt.Client
	intakeTopic       string
	retryTopic        string
	qos               byte
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	intake            Intake
	warnings          warning.Sink
	log               *log.Logger
}

// NewMQTT creates the MQTT source and connects to the broker
func NewMQTT(cfg *config.MQTTConfig, intake Intake,
	warnings warning.Sink, logger *log.Logger) (*MQTT, error) {

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetResumeSubs(true)
	opts.SetOrderMatters(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Error("MQTT connection lost: %v", err)
		}
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	})

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected successfully")
	})

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	return &MQTT{
		client:            client,
		intakeTopic:       cfg.IntakeTopic,
		retryTopic:        cfg.RetryTopic,
		qos:               cfg.QoS,
		writeTimeout:      cfg.WriteTimeout,
		subscribeTimeout:  cfg.SubscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		intake:            intake,
		warnings:          warnings,
		log:               logger,
	}, nil
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// Note: Enabling InsecureSkipVerify weakens TLS security and should only be used for testing.
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Name identifies the source in logs
func (m *MQTT) Name() string { return "mqtt" }

// Run subscribes to the intake topic and blocks until the context is cancelled
func (m *MQTT) Run(ctx context.Context) error {
	token := m.client.Subscribe(m.intakeTopic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		m.handleMessage(msg)
	})

	if !token.WaitTimeout(m.subscribeTimeout) {
		return fmt.Errorf("mqtt intake subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to intake topic: %w", err)
	}

	m.log.Info("MQTT source started on topic %s", m.intakeTopic)
	<-ctx.Done()
	return nil
}

// handleMessage decodes one MQTT message and hands it to the intake.
// Malformed payloads are dropped: republishing them cannot fix them.
func (m *MQTT) handleMessage(msg mqtt.Message) {
	payload := msg.Payload()

	ptr, err := parsePointer(payload)
	if err != nil {
		m.warnings.AddWarning("MALFORMED_POINTER", warning.SeverityWarn, err.Error(), "mqtt")
		return
	}

	ptr.BatchID = newBatchID()
	ptr.BrokerMessageID = fmt.Sprintf("%d", msg.MessageID())

	body := make([]byte, len(payload))
	copy(body, payload)

	m.intake.Route(ptr, &mqttCallback{source: m, payload: body})
}

// republish puts a nacked payload back on the retry topic
func (m *MQTT) republish(p *message.Pointer, payload []byte) {
	token := m.client.Publish(m.retryTopic, m.qos, false, payload)
	if !token.WaitTimeout(m.writeTimeout) {
		m.log.Warn("MQTT retry publish timeout for pointer %s", p.ID)
		return
	}
	if err := token.Error(); err != nil {
		m.log.Warn("MQTT retry publish failed for pointer %s: %v", p.ID, err)
	}
}

// Close disconnects from the MQTT broker
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(m.disconnectTimeout)
	}
	return nil
}

// mqttCallback keeps the original payload so a nack can republish it intact
type mqttCallback struct {
	source  *MQTT
	payload []byte
}

// Ack is a no-op: the broker already discarded the delivered message
func (c *mqttCallback) Ack(_ *message.Pointer) {}

// Nack republishes the payload to the retry topic
func (c *mqttCallback) Nack(p *message.Pointer) {
	c.source.republish(p, c.payload)
}
