package application

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/registry"
)

func (router *RequestRouter) addRegistryHandlers(a *api) {
	router.Get("/devices", a.listDevices)
	router.Post("/devices", a.createDevice)
	router.Get("/devices/{id}", a.getDevice)
	router.Patch("/devices/{id}", a.updateDevice)
	router.Delete("/devices/{id}", a.deleteDevice)
	router.Get("/devices/{id}/sensors", a.listSensors)
	router.Get("/devices/{id}/reports/flow", a.listFlowReports)

	router.Get("/networks", a.listNetworks)
	router.Post("/networks", a.createNetwork)
	router.Delete("/networks/{id}", a.deleteNetwork)
	router.Get("/networks/{id}/devices", a.listNetworkDevices)
	router.Put("/networks/{id}/devices/{deviceID}", a.associateDevice)
	router.Delete("/networks/{id}/devices/{deviceID}", a.detachDevice)

	router.Get("/sensors/{id}/calibration", a.getCalibration)
	router.Put("/sensors/{id}/calibration", a.saveCalibration)
	router.Get("/sensors/{id}/reports/moisture", a.listMoistureReports)

	router.Get("/groups", a.listGroups)
	router.Get("/groups/{name}/devices", a.listGroupMembers)
}

//origin returns the store a device request targets, from the origin query parameter
func origin(r *http.Request) models.Provenance {
	return models.Provenance(r.URL.Query().Get("origin"))
}

func (a *api) listDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.DeviceFilter{Name: q.Get("name"), Provenance: origin(r)}

	if t := q.Get("type"); t != "" {
		deviceType, ok := models.ParseDeviceType(t)
		if !ok {
			a.writeJSON(w, http.StatusOK, []models.Device{})
			return
		}
		filter.Type = deviceType
	}

	devices, err := a.services.Registry.ListDevices(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, devices)
}

func (a *api) createDevice(w http.ResponseWriter, r *http.Request) {
	in := registry.DeviceInput{}
	if err := decodeBody(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	device, err := a.services.Registry.CreateDevice(r.Context(), origin(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, device)
}

func (a *api) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := a.services.Registry.GetDevice(r.Context(), origin(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, device)
}

func (a *api) updateDevice(w http.ResponseWriter, r *http.Request) {
	patch := registry.DevicePatch{}
	if err := decodeBody(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}

	device, err := a.services.Registry.UpdateDevice(r.Context(), origin(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, device)
}

func (a *api) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := a.services.Registry.DeleteDevice(r.Context(), origin(r), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := a.services.Registry.SensorsOfDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, sensors)
}

func (a *api) listFlowReports(w http.ResponseWriter, r *http.Request) {
	readings, err := a.services.Registry.FlowReports(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, readings)
}

func (a *api) listNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := a.services.Registry.ListNetworks(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, networks)
}

func (a *api) createNetwork(w http.ResponseWriter, r *http.Request) {
	in := models.Network{}
	if err := decodeBody(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	network, err := a.services.Registry.CreateNetwork(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, network)
}

func (a *api) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := a.services.Registry.DeleteNetwork(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listNetworkDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.services.Registry.NetworkDevices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, devices)
}

func (a *api) associateDevice(w http.ResponseWriter, r *http.Request) {
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))

	membership, err := a.services.Registry.Associate(r.Context(), chi.URLParam(r, "deviceID"), chi.URLParam(r, "id"), replace)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]string{
		"id":        membership.ID,
		"idDevice":  membership.Device.ID,
		"idNetwork": membership.Network.ID,
	})
}

func (a *api) detachDevice(w http.ResponseWriter, r *http.Request) {
	if err := a.services.Registry.Detach(r.Context(), chi.URLParam(r, "deviceID"), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getCalibration(w http.ResponseWriter, r *http.Request) {
	calibration, err := a.services.Registry.Calibration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, calibration)
}

func (a *api) saveCalibration(w http.ResponseWriter, r *http.Request) {
	in := registry.CalibrationInput{}
	if err := decodeBody(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	calibration, created, err := a.services.Registry.SaveCalibration(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	a.writeJSON(w, status, calibration)
}

func (a *api) listMoistureReports(w http.ResponseWriter, r *http.Request) {
	readings, err := a.services.Registry.MoistureReports(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, readings)
}

func (a *api) listGroups(w http.ResponseWriter, r *http.Request) {
	devices, err := a.services.Registry.ListDevices(r.Context(), registry.DeviceFilter{})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	classified, err := a.services.Prober.Classify(r.Context(), devices)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, classified)
}

func (a *api) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	devices, err := a.services.Registry.ListDevices(r.Context(), registry.DeviceFilter{})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	members, err := a.services.Prober.Members(r.Context(), devices, chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, members)
}
