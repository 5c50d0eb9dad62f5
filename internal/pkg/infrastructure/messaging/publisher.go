//Package messaging announces accepted reports on the message bus
package messaging

import (
	"context"
	"time"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging/telemetry"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//ReportAccepted is published once for every stored report
type ReportAccepted struct {
	ID              string    `json:"id"`
	Variant         string    `json:"variant"`
	Collection      string    `json:"collection"`
	DeviceID        string    `json:"idDevice"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

//TopicName returns the name of the topic that accepted reports are posted to
func (r *ReportAccepted) TopicName() string {
	return "telemetry.report.accepted"
}

//ContentType returns the content type of the message body
func (r *ReportAccepted) ContentType() string {
	return "application/json"
}

//Publisher implements ingestion.Publisher on top of a messaging context
type Publisher struct {
	messenger MessagingContext
	log       logging.Logger
}

//NewPublisher wraps messenger
func NewPublisher(messenger MessagingContext, log logging.Logger) *Publisher {
	return &Publisher{messenger: messenger, log: log}
}

//ReportAccepted announces the receipt and, for water quality reports with a
//temperature, the water temperature reading
func (p *Publisher) ReportAccepted(ctx context.Context, receipt ingestion.Receipt) error {
	err := p.messenger.PublishOnTopic(&ReportAccepted{
		ID:              receipt.ID,
		Variant:         string(receipt.Variant),
		Collection:      receipt.Collection,
		DeviceID:        receipt.DeviceID,
		ServerTimestamp: receipt.ReceivedAt,
	})
	if err != nil {
		return err
	}

	if quality, ok := receipt.Report.(models.QualityReport); ok && quality.Temperature != nil {
		p.log.Debugf("publishing water temperature %f from %s", *quality.Temperature, receipt.DeviceID)
		return p.messenger.PublishOnTopic(
			telemetry.NewWaterTemperatureTelemetry(*quality.Temperature, receipt.DeviceID, 0.0, 0.0),
		)
	}

	return nil
}
