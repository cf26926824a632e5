// Package mqtt publishes decision records to an MQTT broker so external
// dashboards can follow the pipeline live. Publishing is best effort;
// the decision path never blocks on the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/engine"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher pushes decisions to a single topic, suffixed per camera.
type Publisher struct {
	client pahomqtt.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a publisher from settings. Connect must be
// called before the first Publish.
func NewPublisher(settings *conf.MQTTSettings) *Publisher {
	logger := logging.ForService("mqtt")

	opts := pahomqtt.NewClientOptions().
		AddBroker(settings.Broker).
		SetClientID(settings.ClientID).
		SetUsername(settings.Username).
		SetPassword(settings.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("broker connection lost", "error", err)
		}).
		SetOnConnectHandler(func(pahomqtt.Client) {
			logger.Info("connected to broker", "broker", settings.Broker)
		})

	return &Publisher{
		client: pahomqtt.NewClient(opts),
		topic:  settings.Topic,
		logger: logger,
	}
}

// Connect establishes the broker session.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	if !waitToken(ctx, token) {
		return errors.Newf("broker connect timed out").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return nil
}

// Publish sends one decision as JSON to <topic>/<camera_id>.
func (p *Publisher) Publish(ctx context.Context, d *engine.Decision) error {
	if !p.client.IsConnected() {
		return errors.Newf("not connected to broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}

	token := p.client.Publish(p.topic+"/"+d.CameraID, 0, false, payload)
	if !waitToken(ctx, token) {
		return errors.Newf("publish timed out").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return nil
}

// Disconnect closes the broker session, allowing in-flight messages a
// short drain.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

// waitToken waits for token completion bounded by both the context and
// the publish timeout. Returns false on timeout.
func waitToken(ctx context.Context, token pahomqtt.Token) bool {
	deadline := publishTimeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < deadline {
			deadline = until
		}
	}
	return token.WaitTimeout(deadline)
}
