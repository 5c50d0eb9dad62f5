//Package registry manages the entities operators edit: devices in either
//store, networks and memberships in the management store, sensors and their
//calibrations in the telemetry store. It also serves the read side of the
//stored telemetry.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/federation"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

const (
	NetworksCollection       = "Nets"
	MembershipsCollection    = "DeviceInNet"
	ConfigurationsCollection = "Configurations"
	SensorsCollection        = "Sensores"
	CalibrationsCollection   = "Calibracion"
	DataloggerCollection     = "crtest"

	//SensorOwnerField is the sensor field referencing the owning device
	SensorOwnerField = "Dispositivo"
	//SensorGatewayField is the management store sensor field referencing its gateway
	SensorGatewayField = "Gateway"
)

//FrequencyCache keeps measure frequency lookups close to the gateways polling them
type FrequencyCache interface {
	Get(ctx context.Context, deviceID string) (models.MeasureFrequency, bool, error)
	Set(ctx context.Context, frequency models.MeasureFrequency) error
	Invalidate(ctx context.Context, deviceID string) error
}

//Registry is the management surface over both stores
type Registry struct {
	management  federation.Source
	telemetry   federation.Source
	federator   *federation.Federator
	frequencies FrequencyCache
	now         func() time.Time
	log         logging.Logger
}

//Option configures a Registry
type Option func(*Registry)

//WithFrequencyCache puts a cache in front of measure frequency lookups
func WithFrequencyCache(cache FrequencyCache) Option {
	return func(r *Registry) {
		r.frequencies = cache
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

//New creates a registry over the management and telemetry device sources.
//The management source is federated first.
func New(management, telemetry federation.Source, log logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		management: management,
		telemetry:  telemetry,
		federator:  federation.NewFederator(log, management, telemetry),
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

//Federator returns the federator over both device sources, management first
func (r *Registry) Federator() *federation.Federator {
	return r.federator
}

//source picks the device source for a provenance, defaulting to the management store
func (r *Registry) source(p models.Provenance) (federation.Source, error) {
	if p == "" {
		return r.management, nil
	}

	s, ok := r.federator.Source(p)
	if !ok {
		return federation.Source{}, apperrors.NewInvalidValue("origin", errors.New("unknown store "+string(p)))
	}

	return s, nil
}

//storeFailure classifies an error returned by a store, logging it first
func (r *Registry) storeFailure(op string, err error) error {
	if errors.Is(err, documents.ErrNotFound) {
		return apperrors.NewNotFound(op + ": not found")
	}

	r.log.Errorf("%s failed: %s", op, err.Error())
	return apperrors.NewStoreUnavailable(op, err)
}
