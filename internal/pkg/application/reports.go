package application

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
)

func (router *RequestRouter) addReportHandlers(a *api) {
	for _, variant := range ingestion.Variants {
		router.Post("/reports/"+string(variant), a.ingestReport(variant))
	}

	router.Get("/configurations/MeasureFrequency/{idDevice}", a.getMeasureFrequency)
	router.Post("/campbell-log", a.logDatalogger)
}

func (a *api) ingestReport(variant ingestion.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submission, err := decodeSubmission(r, variant)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		receipt, err := a.services.Pipeline.Ingest(r.Context(), submission)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "report stored",
			"id":      receipt.ID,
			"receipt": receipt,
		})
	}
}

//decodeSubmission reads a report from a json or an url encoded form body
func decodeSubmission(r *http.Request, variant ingestion.Variant) (ingestion.Submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, apperrors.NewInvalidValue("body", err)
		}
		submission, _ := ingestion.FromForm(variant, r.PostForm)
		return submission, nil
	}

	submission, _ := ingestion.NewSubmission(variant)
	if err := decodeBody(r, submission); err != nil {
		return nil, err
	}

	return submission, nil
}

func (a *api) getMeasureFrequency(w http.ResponseWriter, r *http.Request) {
	frequency, err := a.services.Registry.MeasureFrequency(r.Context(), chi.URLParam(r, "idDevice"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, frequency)
}

func (a *api) logDatalogger(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{}
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	id, err := a.services.Registry.LogDatalogger(r.Context(), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}
