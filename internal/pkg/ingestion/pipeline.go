//Package ingestion validates telemetry reports from field gateways and writes
//them as immutable documents into the management store.
package ingestion

import (
	"context"
	"time"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/references"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/timestamps"
)

const (
	//DevicesCollection is the default collection holding the devices every
	//report must point at
	DevicesCollection = "Devices"
	//SensorsCollection holds the sensors snapshotted into flow field reports
	SensorsCollection = "Sensores"
	//GatewayField is the sensor field naming the gateway it is attached to
	GatewayField = "Gateway"
)

//Receipt describes an accepted report
type Receipt struct {
	ID         string        `json:"id"`
	Variant    Variant       `json:"variant"`
	Collection string        `json:"collection"`
	Device     documents.Ref `json:"-"`
	DeviceID   string        `json:"idDevice"`
	ReceivedAt time.Time     `json:"serverTimestamp"`
	//Report is the decoded report as it was stored
	Report models.Report `json:"-"`
}

//Publisher is told about every accepted report
type Publisher interface {
	ReportAccepted(ctx context.Context, receipt Receipt) error
}

//Recorder counts ingestion outcomes
type Recorder interface {
	Accepted(variant Variant)
	Rejected(variant Variant, reason string)
}

//Pipeline turns submissions into stored reports
type Pipeline struct {
	devices *references.Resolver
	//collection holds the devices reports are resolved against
	collection string
	codec      timestamps.Codec
	now        func() time.Time
	log        logging.Logger
	publisher  Publisher
	recorder   Recorder
}

//Option configures a Pipeline
type Option func(*Pipeline)

//WithClock replaces the clock used for server timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

//WithDevicesCollection resolves reporting devices in collection instead of DevicesCollection
func WithDevicesCollection(collection string) Option {
	return func(p *Pipeline) {
		if collection != "" {
			p.collection = collection
		}
	}
}

//WithPublisher announces accepted reports through pub
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

//WithRecorder records outcomes through rec
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = rec
	}
}

//NewPipeline creates a pipeline writing into the store behind devices
func NewPipeline(devices *references.Resolver, codec timestamps.Codec, log logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		devices:    devices,
		collection: DevicesCollection,
		codec:      codec,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

//Ingest validates a submission and writes it. Nothing is written unless every
//check passes.
func (p *Pipeline) Ingest(ctx context.Context, s Submission) (Receipt, error) {
	receipt, err := p.ingest(ctx, s)

	if p.recorder != nil {
		if err != nil {
			p.recorder.Rejected(s.Variant(), reasonOf(err))
		} else {
			p.recorder.Accepted(s.Variant())
		}
	}

	return receipt, err
}

func (p *Pipeline) ingest(ctx context.Context, s Submission) (Receipt, error) {
	if missing := s.missing(); len(missing) > 0 {
		return Receipt{}, apperrors.NewMissingFields(missing...)
	}

	field, id := s.Device()
	device, err := p.devices.Require(ctx, p.collection, id, field)
	if err != nil {
		return Receipt{}, err
	}

	now := p.now()

	report, err := s.decode(p.codec, device, now)
	if err != nil {
		return Receipt{}, err
	}

	if flow, ok := report.(models.FlowFieldReport); ok {
		flow.SensorRefs, err = p.devices.Related(ctx, SensorsCollection, GatewayField, device)
		if err != nil {
			return Receipt{}, apperrors.NewStoreUnavailable("snapshot sensors", err)
		}
		report = flow
	}

	ref, err := p.devices.Store().Create(ctx, report.Collection(), "", report.Fields())
	if err != nil {
		return Receipt{}, apperrors.NewStoreUnavailable("store "+string(s.Variant())+" report", err)
	}

	receipt := Receipt{
		ID:         ref.ID,
		Variant:    s.Variant(),
		Collection: report.Collection(),
		Device:     device,
		DeviceID:   device.ID,
		ReceivedAt: now,
		Report:     report,
	}

	p.log.Infof("stored %s report %s from device %s", receipt.Variant, receipt.ID, receipt.DeviceID)

	if p.publisher != nil {
		if err := p.publisher.ReportAccepted(ctx, receipt); err != nil {
			//the report is already stored, so a failed notification is not a failed ingestion
			p.log.Warnf("failed to publish %s report %s: %s", receipt.Variant, receipt.ID, err.Error())
		}
	}

	return receipt, nil
}

func reasonOf(err error) string {
	if e, ok := apperrors.As(err); ok {
		return string(e.Type)
	}
	return "internal"
}
