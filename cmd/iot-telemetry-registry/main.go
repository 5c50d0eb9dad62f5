package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/federation"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/cache"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/gateway"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	publishing "github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/messaging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/probing"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/references"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/registry"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/timestamps"
)

func main() {

	serviceName := "iot-telemetry-registry"

	log := logging.NewLogger()
	log.Infof("Starting up %s ...", serviceName)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err.Error())
	}
	logging.SetLevel(cfg.LogLevel)

	management := openStore(cfg.Stores.Management, log)
	telemetry := openStore(cfg.Stores.Telemetry, log)

	codec := timestamps.NewCodec()
	codec.GatewayYear = cfg.Timestamps.GatewayYear
	codec.GatewayHourOffset = cfg.Timestamps.GatewayHourOffset
	codec.LabYear = cfg.Timestamps.LabYear

	m := metrics.New()

	pipelineOpts := []ingestion.Option{
		ingestion.WithDevicesCollection(cfg.Stores.Management.DevicesCollection),
		ingestion.WithRecorder(m),
	}
	if cfg.Messaging.Enabled {
		msgConfig := messaging.LoadConfiguration(cfg.Messaging.ServiceName)
		messenger, err := messaging.Initialize(msgConfig)
		if err != nil {
			log.Fatalf("failed to connect to the message bus: %s", err.Error())
		}
		defer messenger.Close()

		pipelineOpts = append(pipelineOpts, ingestion.WithPublisher(publishing.NewPublisher(messenger, log)))
	}

	registryOpts := []registry.Option{}
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("failed to connect to redis: %s", err.Error())
		}
		defer client.Close()

		registryOpts = append(registryOpts, registry.WithFrequencyCache(cache.NewFrequencyCache(client, cfg.Redis.TTL)))
	}

	pipeline := ingestion.NewPipeline(references.NewResolver(management), codec, log, pipelineOpts...)

	reg := registry.New(
		federation.Source{Provenance: models.Provenance(cfg.Stores.Management.Name), Store: management, Collection: cfg.Stores.Management.DevicesCollection},
		federation.Source{Provenance: models.Provenance(cfg.Stores.Telemetry.Name), Store: telemetry, Collection: cfg.Stores.Telemetry.DevicesCollection},
		log,
		registryOpts...,
	)

	prober := probing.NewProber(
		probing.DefaultGroups(management, telemetry), log,
		probing.WithConcurrency(cfg.Probing.Concurrency),
		probing.WithRecorder(m),
	)

	if cfg.MQTT.Broker != "" {
		subscriber := gateway.NewSubscriber(gateway.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, pipeline, log)

		if err := subscriber.Start(); err != nil {
			log.Fatalf("failed to connect to mqtt broker %s: %s", cfg.MQTT.Broker, err.Error())
		}
		defer subscriber.Stop()
	}

	server := application.NewServer(log, cfg.Server.Port, application.Services{
		Pipeline: pipeline,
		Registry: reg,
		Prober:   prober,
		Metrics:  m.Handler(),
	})

	go func() {
		log.Infof("Starting %s on port %d.", serviceName, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %s", err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infof("Shutting down %s ...", serviceName)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %s", err.Error())
	}
}

func openStore(cfg config.StoreConfig, log logging.Logger) *database.GormStore {
	var connect database.ConnectorFunc

	switch {
	case cfg.Driver == "postgres":
		connect = database.NewPostgreSQLConnector(cfg.DSN, log)
	case cfg.DSN != "":
		connect = database.NewSQLiteFileConnector(cfg.DSN)
	default:
		connect = database.NewSQLiteConnector(cfg.Name)
	}

	store, err := database.NewDocumentStore(cfg.Name, connect, log)
	if err != nil {
		log.Fatalf("failed to open document store %s: %s", cfg.Name, err.Error())
	}

	return store
}
