package events

import (
	"encoding/json"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher emits auth activity events. Publishing is fire-and-forget:
// failures are logged and swallowed, never surfaced to the request.
type Publisher interface {
	PublishActivity(msg models.ActivityMessage)
}

type amqpPublisher struct {
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewPublisher(channel *amqp.Channel, cfg *config.RabbitMQConfig) Publisher {
	return &amqpPublisher{channel: channel, cfg: cfg}
}

func (p *amqpPublisher) PublishActivity(msg models.ActivityMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal activity message")
		return
	}

	err = p.channel.Publish(
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   msg.Timestamp,
		},
	)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"action":  msg.Action,
		}).Error("Failed to publish activity message")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":     msg.UserID,
		"session_id":  msg.SessionID,
		"action":      msg.Action,
		"exchange":    p.cfg.Exchange,
		"routing_key": p.cfg.RoutingKey,
	}).Debug("Activity message published")
}

// NopPublisher drops every event. Used when the queue is not configured and
// in tests.
type NopPublisher struct{}

func (NopPublisher) PublishActivity(models.ActivityMessage) {}
