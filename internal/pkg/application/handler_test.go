package application

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/federation"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/probing"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/references"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/registry"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/timestamps"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

type server struct {
	router     *RequestRouter
	management *documents.MemoryStore
	telemetry  *documents.MemoryStore
}

func newServerForTest(t *testing.T) server {
	return newServerWithDevicesIn(t, ingestion.DevicesCollection)
}

//newServerWithDevicesIn keeps management store devices, gw-1 included, in collection
func newServerWithDevicesIn(t *testing.T, collection string) server {
	log := logging.NewLogger()
	management := documents.NewMemoryStore("Cosecha")
	telemetry := documents.NewMemoryStore("Biocarbon")

	_, err := management.Create(context.Background(), collection, "gw-1", documents.Fields{"Name": "North field", "Type": "Flow"})
	require.NoError(t, err)

	services := Services{
		Pipeline: ingestion.NewPipeline(
			references.NewResolver(management), timestamps.NewCodec(), log,
			ingestion.WithDevicesCollection(collection),
		),
		Registry: registry.New(
			federation.Source{Provenance: "Cosecha", Store: management, Collection: collection},
			federation.Source{Provenance: "Biocarbon", Store: telemetry, Collection: "Dispositivos"},
			log,
		),
		Prober: probing.NewProber(probing.DefaultGroups(management, telemetry), log),
	}

	return server{router: createRequestRouter(log, services), management: management, telemetry: telemetry}
}

func (s server) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", createURL(path), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s server) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}

	req, _ := http.NewRequest(method, createURL(path), reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestThatAReportFromAKnownDeviceIsStored(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("POST", "/reports/atmospheric", `{"idDevice":"gw-1","temperature":"21.5","humidity":null,"pressure":"1013","light":"","uvradiation":"3","date":"2025-04-30 10:00:00"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])

	docs, err := s.management.Find(context.Background(), models.AtmosphericReportCollection)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestThatAReportFromAnUnknownDeviceIsRejected(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("POST", "/reports/flow/lab", `{"id_device":"ghost","flow":"3.5"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "id_device")
}

func TestThatMalformedReportBodiesAreRejected(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("POST", "/reports/quality", `{"idDevice":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestThatMeasureFrequencyIsNotFoundWithoutAConfiguration(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("GET", "/configurations/MeasureFrequency/gw-1", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThatMeasureFrequencyIsReturnedFromTheConfiguration(t *testing.T) {
	s := newServerForTest(t)
	device := s.management.Ref(ingestion.DevicesCollection, "gw-1")
	_, err := s.management.Create(context.Background(), registry.ConfigurationsCollection, "", documents.Fields{"idDevice": device, "MeasureFrequency": 15.0})
	require.NoError(t, err)

	w := s.do("GET", "/configurations/MeasureFrequency/gw-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"measureFrequency":15}`, w.Body.String())
}

func TestThatCreatingADeviceWithATakenNameConflicts(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("POST", "/devices", `{"id":"gw-2","name":"North field","type":"Flow"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestThatDevicesAreListedFromBothStores(t *testing.T) {
	s := newServerForTest(t)
	w := s.do("POST", "/devices?origin=Biocarbon", `{"id":"soil-1","name":"Greenhouse","type":"Humidity"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do("GET", "/devices", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gw-1")
	assert.Contains(t, w.Body.String(), "soil-1")
}

func TestThatSavingACalibrationTwiceUpdatesIt(t *testing.T) {
	s := newServerForTest(t)
	_, err := s.telemetry.Create(context.Background(), registry.SensorsCollection, "s-1", documents.Fields{"Nombre": "Probe"})
	require.NoError(t, err)

	w := s.do("PUT", "/sensors/s-1/calibration", `{"a":1.5,"b":2,"c":0.1,"type":"quadratic"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do("PUT", "/sensors/s-1/calibration", `{"a":1.6,"b":2,"c":0.1,"type":"quadratic"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	docs, err := s.telemetry.Find(context.Background(), registry.CalibrationsCollection)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestThatGroupsClassifyEveryDevice(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("GET", "/groups", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gw-1")
}

func TestThatAnUnknownGroupIsNotFound(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("GET", "/groups/radiation/devices", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThatQueryEntitiesReturnsFederatedDevices(t *testing.T) {
	s := newServerForTest(t)

	req, _ := http.NewRequest("GET", "http://localhost:8080/ngsi-ld/v1/entities?type=Device", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "urn:ngsi-ld:Device:gw-1")
	assert.Contains(t, w.Body.String(), "origin=Cosecha")
}

func TestThatRetrieveEntityReturnsAFederatedDevice(t *testing.T) {
	s := newServerForTest(t)
	_, err := s.telemetry.Create(context.Background(), "Dispositivos", "soil-1", documents.Fields{"Name": "Greenhouse", "Type": "Humedad"})
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "http://localhost:8080/ngsi-ld/v1/entities/urn:ngsi-ld:Device:soil-1", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "urn:ngsi-ld:Device:soil-1")
	assert.Contains(t, w.Body.String(), "origin=Biocarbon")
}

func TestThatRetrieveEntityFailsForAnUnknownDevice(t *testing.T) {
	s := newServerForTest(t)

	req, _ := http.NewRequest("GET", "http://localhost:8080/ngsi-ld/v1/entities/urn:ngsi-ld:Device:ghost", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestThatFormEncodedLabReportsAreStored(t *testing.T) {
	s := newServerForTest(t)

	w := s.postForm("/reports/flow/lab", url.Values{"id_device": {"gw-1"}, "flow": {"12.5"}})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	docs, err := s.management.Find(context.Background(), models.FlowLabReportCollection)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	flow, _ := docs[0].Float("Flow")
	assert.Equal(t, 12.5, flow)
}

func TestThatFormEncodedFlowReportsAreStored(t *testing.T) {
	s := newServerForTest(t)

	w := s.postForm("/reports/flow", url.Values{
		"id_device": {"gw-1"}, "flowBajoCosto": {"1.5"}, "flowAltoCosto": {"2"}, "timestamp": {"10.03041130"},
	})

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestThatFormEncodedReportsWithoutADeviceAreRejected(t *testing.T) {
	s := newServerForTest(t)

	w := s.postForm("/reports/flow/lab", url.Values{"flow": {"12.5"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "id_device")
}

func TestThatReportsResolveDevicesInTheConfiguredCollection(t *testing.T) {
	s := newServerWithDevicesIn(t, "Gateways")

	w := s.do("POST", "/devices", `{"id":"gw-2","name":"South field","type":"Flow"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do("POST", "/reports/flow", `{"id_device":"gw-2","flowBajoCosto":1,"flowAltoCosto":2,"timestamp":"10.03041130"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	docs, err := s.management.Find(context.Background(), models.FlowFieldReportCollection)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	device, _ := docs[0].Reference("idDevice")
	assert.Equal(t, s.management.Ref("Gateways", "gw-2"), device)
}

func TestThatMetricsAreNotServedWithoutARegistry(t *testing.T) {
	s := newServerForTest(t)

	w := s.do("GET", "/metrics", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func createURL(path string, params ...string) string {
	url := "http://localhost:8880" + path

	if len(params) > 0 {
		url = url + "?"

		for _, p := range params {
			url = url + p + "&"
		}

		url = strings.TrimSuffix(url, "&")
	}

	return url
}
