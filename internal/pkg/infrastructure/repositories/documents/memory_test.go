package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThatFindReturnsDocumentsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")

	for _, id := range []string{"d2", "d1", "d3"} {
		_, err := store.Create(ctx, "Devices", id, Fields{"Name": id})
		require.NoError(t, err)
	}

	docs, err := store.Find(ctx, "Devices")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "d2", docs[0].Ref.ID)
	assert.Equal(t, "d1", docs[1].Ref.ID)
	assert.Equal(t, "d3", docs[2].Ref.ID)
}

func TestThatReferencesMatchByStoreCollectionAndID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")
	device := store.Ref("Devices", "gw-01")

	_, err := store.Create(ctx, "Sensores", "s1", Fields{"Gateway": device})
	require.NoError(t, err)

	found, err := store.Find(ctx, "Sensores", Eq("Gateway", device))
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = store.Find(ctx, "Sensores", Eq("Gateway", NewRef("Biocarbon", "Devices", "gw-01")))
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.Find(ctx, "Sensores", Eq("Gateway", "gw-01"))
	require.NoError(t, err)
	assert.Empty(t, found, "a plain string must not match a reference")
}

func TestThatCreateRejectsTakenIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")

	_, err := store.Create(ctx, "Devices", "gw-01", Fields{})
	require.NoError(t, err)

	_, err = store.Create(ctx, "Devices", "gw-01", Fields{})
	assert.Equal(t, ErrAlreadyExists, err)
}

func TestThatGeneratedIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")

	r1, err := store.Create(ctx, "FlowReportsIsla", "", Fields{})
	require.NoError(t, err)
	r2, err := store.Create(ctx, "FlowReportsIsla", "", Fields{})
	require.NoError(t, err)

	assert.NotEmpty(t, r1.ID)
	assert.NotEqual(t, r1.ID, r2.ID)
}

func TestThatNilPointersAreStoredAsNull(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")
	var missing *float64
	zero := 0.0

	ref, err := store.Create(ctx, "AtmosphericReport", "", Fields{"Temperature": missing, "Humidity": &zero})
	require.NoError(t, err)

	doc, err := store.Get(ctx, ref)
	require.NoError(t, err)

	v, present := doc.Fields["Temperature"]
	assert.True(t, present)
	assert.Nil(t, v)

	h, ok := doc.Float("Humidity")
	assert.True(t, ok)
	assert.Equal(t, 0.0, h)
}

func TestThatUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")

	ref, _ := store.Create(ctx, "Devices", "gw-01", Fields{"Name": "caja", "Type": "Flow"})
	require.NoError(t, store.Update(ctx, ref, Fields{"Name": "caja norte"}))

	doc, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "caja norte", doc.Text("Name"))
	assert.Equal(t, "Flow", doc.Text("Type"))

	err = store.Update(ctx, store.Ref("Devices", "missing"), Fields{"Name": "x"})
	assert.Equal(t, ErrNotFound, err)
}

func TestThatDeleteRemovesTheDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Cosecha")

	ref, _ := store.Create(ctx, "Devices", "gw-01", Fields{})
	require.NoError(t, store.Delete(ctx, ref))

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, ErrNotFound, store.Delete(ctx, ref))
}

func TestThatForeignReferencesAreRejected(t *testing.T) {
	store := NewMemoryStore("Cosecha")
	_, err := store.Get(context.Background(), NewRef("Biocarbon", "Dispositivos", "x"))
	assert.Equal(t, ErrForeignRef, err)
}

func TestThatInjectedFailuresAreReturned(t *testing.T) {
	store := NewMemoryStore("Cosecha")
	boom := errors.New("deadline exceeded")
	store.FailWith(boom)

	_, err := store.Exists(context.Background(), store.Ref("Devices", "x"))
	assert.Equal(t, boom, err)
}

func TestThatEncodingKeepsValueTypes(t *testing.T) {
	when := time.Date(2025, 3, 4, 11, 30, 0, 0, time.UTC)
	fields := Fields{
		"idDevice":   NewRef("Cosecha", "Devices", "gw-01"),
		"sensorRefs": []Ref{NewRef("Cosecha", "Sensores", "s1")},
		"flow":       1.5,
		"note":       "ok",
		"scaled":     true,
		"date":       when,
		"missing":    nil,
	}

	body, err := Encode(fields)
	require.NoError(t, err)

	decoded, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}
