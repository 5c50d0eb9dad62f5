//Package federation merges the devices kept in two independently provisioned
//stores into one list for operators.
package federation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//Source is a device collection in one store, tagged with the provenance its
//devices are given
type Source struct {
	Provenance models.Provenance
	Store      documents.Store
	Collection string
}

//Federator reads devices from its sources. The ID spaces of the sources are
//assumed disjoint and nothing is de-duplicated.
type Federator struct {
	sources []Source
	log     logging.Logger
}

func NewFederator(log logging.Logger, sources ...Source) *Federator {
	return &Federator{sources: sources, log: log}
}

//Source looks up a source by provenance
func (f *Federator) Source(p models.Provenance) (Source, bool) {
	for _, s := range f.sources {
		if s.Provenance == p {
			return s, true
		}
	}
	return Source{}, false
}

//ListUnifiedDevices reads every source concurrently and concatenates the
//results in source order, each source in its own insertion order
func (f *Federator) ListUnifiedDevices(ctx context.Context) ([]models.Device, error) {
	perSource := make([][]models.Device, len(f.sources))

	g, gctx := errgroup.WithContext(ctx)

	for i, source := range f.sources {
		i, source := i, source
		g.Go(func() error {
			docs, err := source.Store.Find(gctx, source.Collection)
			if err != nil {
				return fmt.Errorf("failed to list devices from %s: %w", source.Provenance, err)
			}

			devices := make([]models.Device, 0, len(docs))
			for _, doc := range docs {
				devices = append(devices, models.DeviceFromDocument(doc, source.Provenance))
			}
			perSource[i] = devices

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.log.Errorf("device federation failed: %s", err.Error())
		return nil, apperrors.NewStoreUnavailable("list devices", err)
	}

	unified := []models.Device{}
	for _, devices := range perSource {
		unified = append(unified, devices...)
	}

	return unified, nil
}

//FindDevice returns the first device with id, searching the sources in order
func (f *Federator) FindDevice(ctx context.Context, id string) (models.Device, error) {
	for _, source := range f.sources {
		ref := source.Store.Ref(source.Collection, id)
		if !ref.Valid() {
			break
		}

		doc, err := source.Store.Get(ctx, ref)
		if errors.Is(err, documents.ErrNotFound) {
			continue
		}
		if err != nil {
			return models.Device{}, apperrors.NewStoreUnavailable("get device", err)
		}

		return models.DeviceFromDocument(*doc, source.Provenance), nil
	}

	return models.Device{}, apperrors.NewNotFound(fmt.Sprintf("no device with id %q", id))
}
