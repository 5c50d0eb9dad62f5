package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//MeasureFrequency returns the sampling configuration of a management store
//device. A configuration without a frequency is returned with a nil value.
func (r *Registry) MeasureFrequency(ctx context.Context, deviceID string) (models.MeasureFrequency, error) {
	if r.frequencies != nil {
		cached, ok, err := r.frequencies.Get(ctx, deviceID)
		if err != nil {
			r.log.Warnf("measure frequency cache lookup for %s failed: %s", deviceID, err.Error())
		} else if ok {
			return cached, nil
		}
	}

	device := r.management.Store.Ref(r.management.Collection, deviceID)

	docs, err := r.management.Store.Find(ctx, ConfigurationsCollection, documents.Eq("idDevice", device))
	if err != nil {
		return models.MeasureFrequency{}, r.storeFailure("get configuration", err)
	}
	if len(docs) == 0 {
		return models.MeasureFrequency{}, apperrors.NewNotFound(fmt.Sprintf("no configuration found for device %q", deviceID))
	}

	frequency := models.MeasureFrequency{DeviceID: deviceID}
	if v, ok := docs[0].Float("MeasureFrequency"); ok {
		frequency.Value = &v
	}

	if r.frequencies != nil {
		if err := r.frequencies.Set(ctx, frequency); err != nil {
			r.log.Warnf("failed to cache measure frequency for %s: %s", deviceID, err.Error())
		}
	}

	return frequency, nil
}

//FlowReports returns the flow field reports of a device, newest first by the
//gateway's own timestamp
func (r *Registry) FlowReports(ctx context.Context, deviceID string) ([]models.FlowReading, error) {
	device := r.management.Store.Ref(r.management.Collection, deviceID)

	docs, err := r.management.Store.Find(ctx, models.FlowFieldReportCollection, documents.Eq("idDevice", device))
	if err != nil {
		return nil, r.storeFailure("list flow reports", err)
	}

	readings := make([]models.FlowReading, 0, len(docs))
	for _, doc := range docs {
		readings = append(readings, models.FlowReadingFromDocument(doc))
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return after(readings[i].ClientTimestamp, readings[j].ClientTimestamp)
	})

	return readings, nil
}

//MoistureReports merges the reports of a sensor from both moisture
//collections, newest upload first
func (r *Registry) MoistureReports(ctx context.Context, sensorID string) ([]models.MoistureReading, error) {
	sensor := r.telemetry.Store.Ref(SensorsCollection, sensorID)
	collections := []string{models.MoistureCollection, models.MoistureSCCollection}
	perCollection := make([][]models.MoistureReading, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		i, collection := i, collection
		g.Go(func() error {
			docs, err := r.telemetry.Store.Find(gctx, collection, documents.Eq("idSensor", sensor))
			if err != nil {
				return err
			}
			for _, doc := range docs {
				perCollection[i] = append(perCollection[i], models.MoistureReadingFromDocument(doc))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, r.storeFailure("list moisture reports", err)
	}

	readings := []models.MoistureReading{}
	for _, rs := range perCollection {
		readings = append(readings, rs...)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return after(readings[i].UploadedAt, readings[j].UploadedAt)
	})

	return readings, nil
}

//after orders instants descending with missing ones last
func after(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

//dataloggerFields are the CR300 table columns kept from a datalogger post
var dataloggerFields = []string{
	"timestamp", "record",
	"VWC_1_Avg", "EC_1_Avg", "T_1_Avg", "P_1_Avg", "PA_1_Avg", "VR_1_Avg",
	"VWC_2_Avg", "EC_2_Avg", "T_2_Avg", "P_2_Avg", "PA_2_Avg", "VR_2_Avg",
	"SEVolt_1_Avg", "SEVolt_2_Avg",
}

//DefaultDataloggerSource tags datalogger records that do not name their source
const DefaultDataloggerSource = "CR300"

//LogDatalogger stores the known columns of a datalogger record. Unknown keys
//are dropped.
func (r *Registry) LogDatalogger(ctx context.Context, body map[string]interface{}) (string, error) {
	fields := documents.Fields{}

	for _, name := range dataloggerFields {
		v, ok := body[name]
		if !ok {
			continue
		}
		switch v.(type) {
		case nil, string, float64, bool:
			fields[name] = v
		default:
			return "", apperrors.NewInvalidValue(name, fmt.Errorf("expected a scalar value"))
		}
	}

	fields["source"] = DefaultDataloggerSource
	if source, ok := body["source"].(string); ok && source != "" {
		fields["source"] = source
	}
	fields["createdAt"] = r.now()

	ref, err := r.management.Store.Create(ctx, DataloggerCollection, "", fields)
	if err != nil {
		return "", r.storeFailure("store datalogger record", err)
	}

	r.log.Infof("stored datalogger record %s from %s", ref.ID, fields["source"])

	return ref.ID, nil
}
