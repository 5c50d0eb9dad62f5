//Package gateway receives reports from field gateways that publish over MQTT
//instead of posting to the HTTP api. Payloads are the same JSON bodies.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
)

//Ingester accepts decoded submissions
type Ingester interface {
	Ingest(ctx context.Context, s ingestion.Submission) (ingestion.Receipt, error)
}

//Options configures the broker connection
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	//Timeout bounds the ingestion of a single message
	Timeout time.Duration
}

//Subscriber feeds messages published on <prefix>/<variant> into the pipeline
type Subscriber struct {
	opts     Options
	client   mqtt.Client
	ingester Ingester
	log      logging.Logger
}

func NewSubscriber(opts Options, ingester Ingester, log logging.Logger) *Subscriber {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "reports"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	s := &Subscriber{opts: opts, ingester: ingester, log: log}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(func(c mqtt.Client) {
			//subscriptions are lost on reconnect unless the session is persistent
			if err := s.subscribe(c); err != nil {
				s.log.Errorf("failed to subscribe to gateway reports: %s", err.Error())
			}
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			s.log.Warnf("lost connection to mqtt broker: %s", err.Error())
		})

	s.client = mqtt.NewClient(clientOpts)

	return s
}

//Topic returns the subscription filter
func (s *Subscriber) Topic() string {
	return s.opts.TopicPrefix + "/#"
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.Topic(), s.opts.QoS, s.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	s.log.Infof("subscribed to %s on %s", s.Topic(), s.opts.Broker)
	return nil
}

//Start connects to the broker. Subscribing happens once the connection is up.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", s.opts.Broker, token.Error())
	}
	return nil
}

//Stop disconnects, giving in-flight messages a moment to finish
func (s *Subscriber) Stop() {
	s.client.Disconnect(250)
}

func (s *Subscriber) onMessage(c mqtt.Client, m mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	receipt, err := s.handle(ctx, m.Topic(), m.Payload())
	if err != nil {
		s.log.Warnf("rejected gateway report on %s: %s", m.Topic(), err.Error())
		return
	}

	s.log.Debugf("gateway report on %s stored as %s", m.Topic(), receipt.ID)
}

//variantOf maps a topic below the prefix to a report variant
func (s *Subscriber) variantOf(topic string) (ingestion.Variant, bool) {
	rest := strings.TrimPrefix(topic, s.opts.TopicPrefix+"/")
	if rest == topic {
		return "", false
	}

	v := ingestion.Variant(rest)
	for _, known := range ingestion.Variants {
		if v == known {
			return v, true
		}
	}

	return "", false
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) (ingestion.Receipt, error) {
	variant, ok := s.variantOf(topic)
	if !ok {
		return ingestion.Receipt{}, fmt.Errorf("no report variant for topic %s", topic)
	}

	submission, _ := ingestion.NewSubmission(variant)
	if err := json.Unmarshal(payload, submission); err != nil {
		return ingestion.Receipt{}, fmt.Errorf("failed to decode payload: %w", err)
	}

	return s.ingester.Ingest(ctx, submission)
}
