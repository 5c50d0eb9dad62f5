package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/datamodels/fiware"
	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/registry"
)

const deviceTypeName = "Device"

//queryTimeout bounds a federated read started from an NGSI-LD query
const queryTimeout = 30 * time.Second

func createContextRegistry(log logging.Logger, services Services) ngsi.ContextRegistry {
	contextRegistry := ngsi.NewContextRegistry()
	ctxSource := contextSource{registry: services.Registry, log: log}
	contextRegistry.Register(&ctxSource)
	return contextRegistry
}

//contextSource exposes the federated device list as NGSI-LD Device entities
type contextSource struct {
	registry *registry.Registry
	log      logging.Logger
}

func (cs contextSource) ProvidesEntitiesWithMatchingID(entityID string) bool {
	return strings.HasPrefix(entityID, fiware.DeviceIDPrefix)
}

//CreateEntity is not supported. Devices are registered through the devices
//api so that their identity and name can be checked.
func (cs *contextSource) CreateEntity(typeName, entityID string, req ngsi.Request) error {
	errorMessage := fmt.Sprintf("creating entities of type %s is not supported, use the devices api", typeName)
	cs.log.Errorf(errorMessage)
	return errors.New(errorMessage)
}

func (cs *contextSource) GetEntities(query ngsi.Query, callback ngsi.QueryEntitiesCallback) error {
	if query == nil {
		return errors.New("GetEntities: query may not be nil")
	}

	for _, typeName := range query.EntityTypes() {
		if typeName != deviceTypeName {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		devices, err := cs.registry.ListDevices(ctx, registry.DeviceFilter{})
		cancel()
		if err != nil {
			return fmt.Errorf("unable to get devices: %s", err.Error())
		}

		for _, device := range devices {
			err = callback(fiware.NewDevice(fiware.DeviceIDPrefix+device.ID, deviceValue(device)))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

//RetrieveEntity looks up a single device across the federated stores
func (cs *contextSource) RetrieveEntity(entityID string, req ngsi.Request) (ngsi.Entity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	device, err := cs.registry.Federator().FindDevice(ctx, strings.TrimPrefix(entityID, fiware.DeviceIDPrefix))
	if err != nil {
		cs.log.Infof("unable to retrieve entity %s: %s", entityID, err.Error())
		return nil, err
	}

	return fiware.NewDevice(fiware.DeviceIDPrefix+device.ID, deviceValue(device)), nil
}

//deviceValue packs the operator facing attributes into the Device value as
//semicolon separated key=value pairs
func deviceValue(d models.Device) string {
	pairs := []string{"origin=" + string(d.Provenance)}
	if d.Type != "" {
		pairs = append(pairs, "type="+string(d.Type))
	}
	if d.Name != "" {
		pairs = append(pairs, "name="+d.Name)
	}
	return strings.Join(pairs, ";")
}

func (cs contextSource) ProvidesAttribute(attributeName string) bool {
	return attributeName == "value"
}

func (cs contextSource) ProvidesType(typeName string) bool {
	return typeName == deviceTypeName
}

//UpdateEntityAttributes is not supported, device attributes are edited through the devices api
func (cs *contextSource) UpdateEntityAttributes(entityID string, req ngsi.Request) error {
	return fmt.Errorf("attributes of %s can not be updated through NGSI-LD", entityID)
}
