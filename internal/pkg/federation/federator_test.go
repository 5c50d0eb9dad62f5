package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	storeA models.Provenance = "Cosecha"
	storeB models.Provenance = "Biocarbon"
)

func newFederatorForTest(t *testing.T) (*Federator, *documents.MemoryStore, *documents.MemoryStore) {
	a := documents.NewMemoryStore(string(storeA))
	b := documents.NewMemoryStore(string(storeB))
	ctx := context.Background()

	for _, id := range []string{"d1", "d2"} {
		_, err := a.Create(ctx, "Devices", id, documents.Fields{"Name": "device " + id})
		require.NoError(t, err)
	}
	_, err := b.Create(ctx, "Dispositivos", "d3", documents.Fields{"Nombre": "device d3"})
	require.NoError(t, err)

	f := NewFederator(logging.NewLogger(),
		Source{Provenance: storeA, Store: a, Collection: "Devices"},
		Source{Provenance: storeB, Store: b, Collection: "Dispositivos"},
	)

	return f, a, b
}

func TestThatStoreADevicesComeBeforeStoreB(t *testing.T) {
	f, _, _ := newFederatorForTest(t)

	devices, err := f.ListUnifiedDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	expected := []struct {
		id         string
		provenance models.Provenance
	}{{"d1", storeA}, {"d2", storeA}, {"d3", storeB}}

	for i, e := range expected {
		assert.Equal(t, e.id, devices[i].ID)
		assert.Equal(t, e.provenance, devices[i].Provenance)
	}

	assert.Equal(t, "device d3", devices[2].Name)
}

func TestThatDuplicateIDsAcrossStoresAreKept(t *testing.T) {
	f, _, b := newFederatorForTest(t)
	_, err := b.Create(context.Background(), "Dispositivos", "d1", documents.Fields{"Nombre": "twin"})
	require.NoError(t, err)

	devices, err := f.ListUnifiedDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 4)

	assert.Equal(t, "d1", devices[3].ID)
	assert.Equal(t, storeB, devices[3].Provenance)
}

func TestThatListingCanBeRepeated(t *testing.T) {
	f, _, _ := newFederatorForTest(t)

	first, err := f.ListUnifiedDevices(context.Background())
	require.NoError(t, err)
	second, err := f.ListUnifiedDevices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestThatAFailingStoreFailsTheListing(t *testing.T) {
	f, _, b := newFederatorForTest(t)
	b.FailWith(errors.New("deadline exceeded"))

	_, err := f.ListUnifiedDevices(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.StoreUnavailable))
}

func TestThatFindDeviceSearchesSourcesInOrder(t *testing.T) {
	f, _, _ := newFederatorForTest(t)

	d, err := f.FindDevice(context.Background(), "d3")
	require.NoError(t, err)
	assert.Equal(t, storeB, d.Provenance)

	_, err = f.FindDevice(context.Background(), "d9")
	assert.True(t, apperrors.Is(err, apperrors.NotFound))
}
