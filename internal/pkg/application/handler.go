package application

import (
	"compress/flate"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"

	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/probing"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/registry"
)

//Services are the components behind the http api
type Services struct {
	Pipeline *ingestion.Pipeline
	Registry *registry.Registry
	Prober   *probing.Prober
	//Metrics is served on /metrics when set
	Metrics http.Handler
}

type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Patch accepts a pattern that should be routed to the handlerFn on a PATCH request
func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

//Put accepts a pattern that should be routed to the handlerFn on a PUT request
func (router *RequestRouter) Put(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Put(pattern, handlerFn)
}

//Delete accepts a pattern that should be routed to the handlerFn on a DELETE request
func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for json and ngsi-ld responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/ld+json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
	router.Get("/ngsi-ld/v1/entities/{entity}", ngsi.NewRetrieveEntityHandler(contextRegistry))
}

func createRequestRouter(log logging.Logger, services Services) *RequestRouter {
	router := newRequestRouter()
	api := &api{log: log, services: services}

	router.addReportHandlers(api)
	router.addRegistryHandlers(api)
	router.addNGSIHandlers(createContextRegistry(log, services))

	if services.Metrics != nil {
		router.impl.Handle("/metrics", services.Metrics)
	}

	return router
}

//NewServer creates the http server for the api without starting it
func NewServer(log logging.Logger, port int, services Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           createRequestRouter(log, services),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

//api holds what the http handlers need
type api struct {
	log      logging.Logger
	services Services
}

func (a *api) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Errorf("failed to write response: %s", err.Error())
	}
}

//writeError maps err to its status and the error body. Unclassified errors
//never leak their text to the caller.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusCode(err)

	if e, ok := apperrors.As(err); ok {
		if status >= http.StatusInternalServerError {
			a.log.Errorf("%s %s failed: %s", r.Method, r.URL.Path, err.Error())
		} else {
			a.log.Infof("%s %s rejected: %s", r.Method, r.URL.Path, err.Error())
		}
		a.writeJSON(w, status, e)
		return
	}

	a.log.Errorf("%s %s failed: %s", r.Method, r.URL.Path, err.Error())
	a.writeJSON(w, status, map[string]string{"error": "internal error"})
}

//decodeBody reads a json request body into v
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewInvalidValue("body", err)
	}
	return nil
}
