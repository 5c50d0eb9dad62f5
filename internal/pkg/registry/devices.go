package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/federation"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//DeviceInput is the operator supplied description of a new device
type DeviceInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

//DevicePatch holds the device attributes to change. Nil fields are left as is.
type DevicePatch struct {
	Name     *string `json:"name"`
	Type     *string `json:"type"`
	Location *string `json:"location"`
}

//DeviceFilter narrows the unified device list
type DeviceFilter struct {
	//Name matches devices whose name contains it, ignoring case
	Name       string
	Type       models.DeviceType
	Provenance models.Provenance
}

func (f DeviceFilter) matches(d models.Device) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Provenance != "" && d.Provenance != f.Provenance {
		return false
	}
	return true
}

//nameTaken reports whether another device in the source already uses name.
//Older documents keep the name as Nombre, so both fields are checked.
func (r *Registry) nameTaken(ctx context.Context, source federation.Source, name, except string) (bool, error) {
	for _, field := range []string{models.DeviceNameField, "Nombre"} {
		docs, err := source.Store.Find(ctx, source.Collection, documents.Eq(field, name))
		if err != nil {
			return false, err
		}
		for _, doc := range docs {
			if doc.Ref.ID != except {
				return true, nil
			}
		}
	}
	return false, nil
}

//CreateDevice registers a device in the store named by p. Both the id and the
//name must be unused in that store.
func (r *Registry) CreateDevice(ctx context.Context, p models.Provenance, in DeviceInput) (models.Device, error) {
	source, err := r.source(p)
	if err != nil {
		return models.Device{}, err
	}

	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)

	missing := []string{}
	if in.ID == "" {
		missing = append(missing, "id")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return models.Device{}, apperrors.NewMissingFields(missing...)
	}

	deviceType, ok := models.ParseDeviceType(in.Type)
	if !ok {
		return models.Device{}, apperrors.NewInvalidValue("type", fmt.Errorf("unknown device type %q", in.Type))
	}

	ref := source.Store.Ref(source.Collection, in.ID)
	if !ref.Valid() {
		return models.Device{}, apperrors.NewInvalidValue("id", fmt.Errorf("%q can not be used as a device id", in.ID))
	}

	exists, err := source.Store.Exists(ctx, ref)
	if err != nil {
		return models.Device{}, r.storeFailure("check device id", err)
	}
	if exists {
		return models.Device{}, apperrors.NewDuplicateIdentity("device", in.ID)
	}

	taken, err := r.nameTaken(ctx, source, in.Name, "")
	if err != nil {
		return models.Device{}, r.storeFailure("check device name", err)
	}
	if taken {
		return models.Device{}, apperrors.NewDuplicateName("device", in.Name)
	}

	device := models.Device{
		ID:         in.ID,
		Name:       in.Name,
		Type:       deviceType,
		Location:   in.Location,
		Provenance: source.Provenance,
		Ref:        ref,
	}

	if _, err := source.Store.Create(ctx, source.Collection, in.ID, device.Fields()); err != nil {
		if errors.Is(err, documents.ErrAlreadyExists) {
			return models.Device{}, apperrors.NewDuplicateIdentity("device", in.ID)
		}
		return models.Device{}, r.storeFailure("create device", err)
	}

	r.log.Infof("created device %s in %s", device.ID, device.Provenance)

	return device, nil
}

//GetDevice reads one device from the store named by p
func (r *Registry) GetDevice(ctx context.Context, p models.Provenance, id string) (models.Device, error) {
	source, err := r.source(p)
	if err != nil {
		return models.Device{}, err
	}

	doc, err := source.Store.Get(ctx, source.Store.Ref(source.Collection, id))
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return models.Device{}, apperrors.NewNotFound(fmt.Sprintf("no device with id %q", id))
		}
		return models.Device{}, r.storeFailure("get device", err)
	}

	return models.DeviceFromDocument(*doc, source.Provenance), nil
}

//UpdateDevice changes the name, type or location of a device. A new name must
//still be unique within the store.
func (r *Registry) UpdateDevice(ctx context.Context, p models.Provenance, id string, patch DevicePatch) (models.Device, error) {
	device, err := r.GetDevice(ctx, p, id)
	if err != nil {
		return models.Device{}, err
	}

	source, _ := r.source(p)

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Device{}, apperrors.NewMissingFields("name")
		}

		if name != device.Name {
			taken, err := r.nameTaken(ctx, source, name, id)
			if err != nil {
				return models.Device{}, r.storeFailure("check device name", err)
			}
			if taken {
				return models.Device{}, apperrors.NewDuplicateName("device", name)
			}
		}
		device.Name = name
	}

	if patch.Type != nil {
		deviceType, ok := models.ParseDeviceType(*patch.Type)
		if !ok {
			return models.Device{}, apperrors.NewInvalidValue("type", fmt.Errorf("unknown device type %q", *patch.Type))
		}
		device.Type = deviceType
	}

	if patch.Location != nil {
		device.Location = *patch.Location
	}

	if err := source.Store.Update(ctx, device.Ref, device.Fields()); err != nil {
		return models.Device{}, r.storeFailure("update device", err)
	}

	return device, nil
}

//DeleteDevice removes a device that nothing references any more. Network
//memberships, sensors attached to a gateway and owned sensors all block the
//deletion.
func (r *Registry) DeleteDevice(ctx context.Context, p models.Provenance, id string) error {
	device, err := r.GetDevice(ctx, p, id)
	if err != nil {
		return err
	}

	source, _ := r.source(p)

	if source.Store.Name() == r.management.Store.Name() {
		member, err := r.management.Store.Any(ctx, MembershipsCollection, documents.Eq("idDevice", device.Ref))
		if err != nil {
			return r.storeFailure("check device memberships", err)
		}
		if member {
			return apperrors.NewHasDependents(fmt.Sprintf("device %q still belongs to a network", id))
		}

		attached, err := r.management.Store.Any(ctx, SensorsCollection, documents.Eq(SensorGatewayField, device.Ref))
		if err != nil {
			return r.storeFailure("check gateway sensors", err)
		}
		if attached {
			return apperrors.NewHasDependents(fmt.Sprintf("device %q still has sensors attached", id))
		}
	}

	owns, err := r.telemetry.Store.Any(ctx, SensorsCollection, documents.Eq(SensorOwnerField, device.Ref))
	if err != nil {
		return r.storeFailure("check device sensors", err)
	}
	if owns {
		return apperrors.NewHasDependents(fmt.Sprintf("device %q still has sensors", id))
	}

	if err := source.Store.Delete(ctx, device.Ref); err != nil {
		return r.storeFailure("delete device", err)
	}

	r.log.Infof("deleted device %s from %s", id, device.Provenance)

	if r.frequencies != nil {
		if err := r.frequencies.Invalidate(ctx, id); err != nil {
			r.log.Warnf("failed to drop cached measure frequency of %s: %s", id, err.Error())
		}
	}

	return nil
}

//ListDevices returns the unified device list narrowed by filter
func (r *Registry) ListDevices(ctx context.Context, filter DeviceFilter) ([]models.Device, error) {
	devices, err := r.federator.ListUnifiedDevices(ctx)
	if err != nil {
		return nil, err
	}

	result := []models.Device{}
	for _, d := range devices {
		if filter.matches(d) {
			result = append(result, d)
		}
	}

	return result, nil
}
