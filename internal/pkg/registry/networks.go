package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

func networkFromDocument(doc documents.Document) models.Network {
	name := doc.Text("Name")
	if name == "" {
		name = doc.Text("Nombre")
	}
	return models.Network{ID: doc.Ref.ID, Name: name}
}

//CreateNetwork adds a network to the management store. Ids and names are unique.
func (r *Registry) CreateNetwork(ctx context.Context, in models.Network) (models.Network, error) {
	store := r.management.Store

	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)

	missing := []string{}
	if in.ID == "" {
		missing = append(missing, "id")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return models.Network{}, apperrors.NewMissingFields(missing...)
	}

	ref := store.Ref(NetworksCollection, in.ID)
	if !ref.Valid() {
		return models.Network{}, apperrors.NewInvalidValue("id", fmt.Errorf("%q can not be used as a network id", in.ID))
	}

	exists, err := store.Exists(ctx, ref)
	if err != nil {
		return models.Network{}, r.storeFailure("check network id", err)
	}
	if exists {
		return models.Network{}, apperrors.NewDuplicateIdentity("network", in.ID)
	}

	taken, err := store.Any(ctx, NetworksCollection, documents.Eq("Name", in.Name))
	if err != nil {
		return models.Network{}, r.storeFailure("check network name", err)
	}
	if taken {
		return models.Network{}, apperrors.NewDuplicateName("network", in.Name)
	}

	if _, err := store.Create(ctx, NetworksCollection, in.ID, documents.Fields{"Name": in.Name}); err != nil {
		if errors.Is(err, documents.ErrAlreadyExists) {
			return models.Network{}, apperrors.NewDuplicateIdentity("network", in.ID)
		}
		return models.Network{}, r.storeFailure("create network", err)
	}

	return in, nil
}

func (r *Registry) ListNetworks(ctx context.Context) ([]models.Network, error) {
	docs, err := r.management.Store.Find(ctx, NetworksCollection)
	if err != nil {
		return nil, r.storeFailure("list networks", err)
	}

	networks := make([]models.Network, 0, len(docs))
	for _, doc := range docs {
		networks = append(networks, networkFromDocument(doc))
	}

	return networks, nil
}

func (r *Registry) requireNetwork(ctx context.Context, id string) (documents.Ref, error) {
	ref := r.management.Store.Ref(NetworksCollection, id)

	exists, err := r.management.Store.Exists(ctx, ref)
	if err != nil {
		return ref, r.storeFailure("get network", err)
	}
	if !exists {
		return ref, apperrors.NewNotFound(fmt.Sprintf("no network with id %q", id))
	}

	return ref, nil
}

//DeleteNetwork removes a network that has no members
func (r *Registry) DeleteNetwork(ctx context.Context, id string) error {
	ref, err := r.requireNetwork(ctx, id)
	if err != nil {
		return err
	}

	members, err := r.management.Store.Any(ctx, MembershipsCollection, documents.Eq("idNet", ref))
	if err != nil {
		return r.storeFailure("check network members", err)
	}
	if members {
		return apperrors.NewHasDependents(fmt.Sprintf("network %q still has devices", id))
	}

	if err := r.management.Store.Delete(ctx, ref); err != nil {
		return r.storeFailure("delete network", err)
	}

	return nil
}

//NetworkDevices lists the devices associated with a network
func (r *Registry) NetworkDevices(ctx context.Context, id string) ([]models.Device, error) {
	ref, err := r.requireNetwork(ctx, id)
	if err != nil {
		return nil, err
	}

	links, err := r.management.Store.Find(ctx, MembershipsCollection, documents.Eq("idNet", ref))
	if err != nil {
		return nil, r.storeFailure("list network members", err)
	}

	devices := []models.Device{}
	for _, link := range links {
		deviceRef, ok := link.Reference("idDevice")
		if !ok {
			continue
		}

		doc, err := r.management.Store.Get(ctx, deviceRef)
		if errors.Is(err, documents.ErrNotFound) {
			r.log.Warnf("membership %s points at missing device %s", link.Ref.ID, deviceRef)
			continue
		}
		if err != nil {
			return nil, r.storeFailure("get network member", err)
		}

		devices = append(devices, models.DeviceFromDocument(*doc, r.management.Provenance))
	}

	return devices, nil
}

//Associate puts a device in a network. A device belongs to at most one network:
//when it already has a membership the call fails, unless replace is set, in
//which case the old membership is detached before the new one is attached.
//The two writes are not atomic.
func (r *Registry) Associate(ctx context.Context, deviceID, networkID string, replace bool) (models.Membership, error) {
	store := r.management.Store

	deviceRef := store.Ref(r.management.Collection, deviceID)
	exists, err := store.Exists(ctx, deviceRef)
	if err != nil {
		return models.Membership{}, r.storeFailure("get device", err)
	}
	if !exists {
		return models.Membership{}, apperrors.NewUnknownDevice("idDevice", deviceID)
	}

	networkRef, err := r.requireNetwork(ctx, networkID)
	if err != nil {
		return models.Membership{}, err
	}

	current, err := store.Find(ctx, MembershipsCollection, documents.Eq("idDevice", deviceRef))
	if err != nil {
		return models.Membership{}, r.storeFailure("list device memberships", err)
	}

	if len(current) > 0 {
		if !replace {
			existing, _ := current[0].Reference("idNet")
			return models.Membership{}, apperrors.NewAlreadyAssociated(deviceID, existing.ID)
		}

		for _, link := range current {
			if err := store.Delete(ctx, link.Ref); err != nil {
				return models.Membership{}, r.storeFailure("detach device", err)
			}
		}
	}

	m := models.Membership{Device: deviceRef, Network: networkRef}
	ref, err := store.Create(ctx, MembershipsCollection, "", m.Fields())
	if err != nil {
		return models.Membership{}, r.storeFailure("associate device", err)
	}
	m.ID = ref.ID

	r.log.Infof("device %s associated with network %s", deviceID, networkID)

	return m, nil
}

//Detach removes a device from a network
func (r *Registry) Detach(ctx context.Context, deviceID, networkID string) error {
	store := r.management.Store

	links, err := store.Find(ctx, MembershipsCollection,
		documents.Eq("idDevice", store.Ref(r.management.Collection, deviceID)),
		documents.Eq("idNet", store.Ref(NetworksCollection, networkID)),
	)
	if err != nil {
		return r.storeFailure("find membership", err)
	}
	if len(links) == 0 {
		return apperrors.NewNotFound(fmt.Sprintf("device %q is not in network %q", deviceID, networkID))
	}

	for _, link := range links {
		if err := store.Delete(ctx, link.Ref); err != nil {
			return r.storeFailure("detach device", err)
		}
	}

	return nil
}
