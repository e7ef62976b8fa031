package mq

import (
	"fmt"
	"os"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/config"
)

const (
	ExchangeName = "events"

	defaultHeartbeat = 10 * time.Second
)

// dialConfig maps MQConfig onto the amqp091 client settings. The connection name shows up in
// the broker's management UI, which is how a stuck consumer is traced back to its host.
func dialConfig(cfg config.MQConfig) amqp091.Config {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	name := cfg.ConnectionName
	if name == "" {
		name = "project-nexus"
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		name = name + "@" + host
	}

	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(name)

	return amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	}
}

func NewConnection(cfg config.MQConfig) (*amqp091.Connection, error) {
	conn, err := amqp091.DialConfig(cfg.URL, dialConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable topic exchange all domain events go to.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
}
