package probing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//countingStore records the fields every existence probe filtered on
type countingStore struct {
	documents.Store
	mu     sync.Mutex
	probes []string
}

func (s *countingStore) Any(ctx context.Context, collection string, filters ...documents.Filter) (bool, error) {
	s.mu.Lock()
	for _, f := range filters {
		s.probes = append(s.probes, collection+"."+f.Field)
	}
	s.mu.Unlock()
	return s.Store.Any(ctx, collection, filters...)
}

type recorderMock struct {
	mu      sync.Mutex
	matches map[string]int
}

func (r *recorderMock) Probed(group, strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[strategy]++
}

func deviceIn(store documents.Store, id string) models.Device {
	return models.Device{ID: id, Ref: store.Ref("Devices", id), Provenance: models.Provenance(store.Name())}
}

func newStores(t *testing.T) (*countingStore, *countingStore) {
	return &countingStore{Store: documents.NewMemoryStore("Cosecha")}, &countingStore{Store: documents.NewMemoryStore("Biocarbon")}
}

func create(t *testing.T, store documents.Store, collection string, fields documents.Fields) {
	_, err := store.Create(context.Background(), collection, "", fields)
	require.NoError(t, err)
}

func TestThatLegacyCajaReportsStillClassifyTheDevice(t *testing.T) {
	management, telemetry := newStores(t)
	device := deviceIn(management, "box-7")
	create(t, management, models.QualityReportCollection, documents.Fields{"Caja": "box-7", "pH": 7.1})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	found, strategy, err := p.Probe(context.Background(), management, models.QualityReportCollection, device)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "box-name", strategy)

	assert.Equal(t, []string{
		"QualityReport.idDevice",
		"QualityReport.idCaja",
		"QualityReport.Caja",
	}, management.probes)

	classified, err := p.Classify(context.Background(), []models.Device{device})
	require.NoError(t, err)
	assert.Equal(t, []string{GroupQuality}, classified[0].Groups)
}

func TestThatProbingStopsAtTheFirstMatchingStrategy(t *testing.T) {
	management, telemetry := newStores(t)
	device := deviceIn(management, "gw-1")
	create(t, management, models.AtmosphericReportCollection, documents.Fields{"idDevice": device.Ref})
	create(t, management, models.AtmosphericReportCollection, documents.Fields{"Caja": "gw-1"})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	found, strategy, err := p.Probe(context.Background(), management, models.AtmosphericReportCollection, device)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "reference", strategy)
	assert.Equal(t, []string{"AtmosphericReport.idDevice"}, management.probes)
}

func TestThatStringFieldsDoNotMatchReferences(t *testing.T) {
	management, telemetry := newStores(t)
	device := deviceIn(management, "gw-1")
	create(t, management, models.AtmosphericReportCollection, documents.Fields{"idDevice": "gw-1"})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	found, _, err := p.Probe(context.Background(), management, models.AtmosphericReportCollection, device)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestThatMoistureIsTheUnionOfBothCollections(t *testing.T) {
	management, telemetry := newStores(t)
	a := deviceIn(telemetry, "soil-a")
	b := deviceIn(telemetry, "soil-b")
	c := deviceIn(telemetry, "soil-c")
	create(t, telemetry, models.MoistureCollection, documents.Fields{"idDevice": a.Ref})
	create(t, telemetry, models.MoistureSCCollection, documents.Fields{"idCaja": "soil-b"})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	classified, err := p.Classify(context.Background(), []models.Device{a, b, c})
	require.NoError(t, err)
	require.Len(t, classified, 3)

	assert.Equal(t, []string{GroupMoisture}, classified[0].Groups)
	assert.Equal(t, []string{GroupMoisture}, classified[1].Groups)
	assert.Empty(t, classified[2].Groups)
}

func TestThatClassifyKeepsDeviceAndGroupOrder(t *testing.T) {
	management, telemetry := newStores(t)
	rec := &recorderMock{matches: map[string]int{}}

	var devices []models.Device
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		d := deviceIn(management, id)
		devices = append(devices, d)
		create(t, management, models.FlowLabReportCollection, documents.Fields{"idDevice": d.Ref})
	}
	create(t, management, models.AtmosphericReportCollection, documents.Fields{"idCaja": "d3"})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger(), WithConcurrency(2), WithRecorder(rec))

	classified, err := p.Classify(context.Background(), devices)
	require.NoError(t, err)

	for i, c := range classified {
		assert.Equal(t, devices[i].ID, c.Device.ID)
	}
	assert.Equal(t, []string{GroupAtmospheric, GroupFlow}, classified[2].Groups)
	assert.Equal(t, []string{GroupFlow}, classified[4].Groups)
	assert.Equal(t, 5, rec.matches["reference"])
	assert.Equal(t, 1, rec.matches["box"])
}

func TestThatMembersFiltersOnASingleGroup(t *testing.T) {
	management, telemetry := newStores(t)
	d1 := deviceIn(management, "d1")
	d2 := deviceIn(management, "d2")
	create(t, management, models.FlowFieldReportCollection, documents.Fields{"idDevice": d2.Ref})

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	members, err := p.Members(context.Background(), []models.Device{d1, d2}, GroupFlow)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "d2", members[0].ID)

	_, err = p.Members(context.Background(), []models.Device{d1}, "radiation")
	assert.True(t, apperrors.Is(err, apperrors.NotFound))
}

func TestThatProbeFailuresFailTheClassification(t *testing.T) {
	management := documents.NewMemoryStore("Cosecha")
	telemetry := documents.NewMemoryStore("Biocarbon")
	telemetry.FailWith(errors.New("permission denied"))

	p := NewProber(DefaultGroups(management, telemetry), logging.NewLogger())

	_, err := p.Classify(context.Background(), []models.Device{deviceIn(management, "d1")})
	assert.True(t, apperrors.Is(err, apperrors.StoreUnavailable))
}
