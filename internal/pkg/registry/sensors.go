package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
)

//CalibrationInput is the operator supplied calibration of a sensor
type CalibrationInput struct {
	A           *float64 `json:"a"`
	B           *float64 `json:"b"`
	C           *float64 `json:"c"`
	Type        string   `json:"type"`
	ScaledBy100 bool     `json:"scaledBy100"`
}

//SensorsOfDevice lists the sensors owned by a telemetry store device
func (r *Registry) SensorsOfDevice(ctx context.Context, deviceID string) ([]models.Sensor, error) {
	owner := r.telemetry.Store.Ref(r.telemetry.Collection, deviceID)

	docs, err := r.telemetry.Store.Find(ctx, SensorsCollection, documents.Eq(SensorOwnerField, owner))
	if err != nil {
		return nil, r.storeFailure("list sensors", err)
	}

	sensors := make([]models.Sensor, 0, len(docs))
	for _, doc := range docs {
		sensors = append(sensors, models.SensorFromDocument(doc, SensorOwnerField))
	}

	return sensors, nil
}

func (r *Registry) requireSensor(ctx context.Context, sensorID string) (documents.Ref, error) {
	ref := r.telemetry.Store.Ref(SensorsCollection, sensorID)

	exists, err := r.telemetry.Store.Exists(ctx, ref)
	if err != nil {
		return ref, r.storeFailure("get sensor", err)
	}
	if !exists {
		return ref, apperrors.NewNotFound(fmt.Sprintf("no sensor with id %q", sensorID))
	}

	return ref, nil
}

//calibrationOf returns the first calibration referencing the sensor, if any
func (r *Registry) calibrationOf(ctx context.Context, sensor documents.Ref) (*documents.Document, error) {
	docs, err := r.telemetry.Store.Find(ctx, CalibrationsCollection, documents.Eq("idSensor", sensor))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) > 1 {
		r.log.Warnf("sensor %s has %d calibrations, using %s", sensor.ID, len(docs), docs[0].Ref.ID)
	}
	return &docs[0], nil
}

//Calibration returns the calibration of a sensor
func (r *Registry) Calibration(ctx context.Context, sensorID string) (models.Calibration, error) {
	sensor, err := r.requireSensor(ctx, sensorID)
	if err != nil {
		return models.Calibration{}, err
	}

	doc, err := r.calibrationOf(ctx, sensor)
	if err != nil {
		return models.Calibration{}, r.storeFailure("get calibration", err)
	}
	if doc == nil {
		return models.Calibration{}, apperrors.NewNotFound(fmt.Sprintf("sensor %q has no calibration", sensorID))
	}

	return models.CalibrationFromDocument(*doc), nil
}

//SaveCalibration creates the calibration of a sensor, or updates it when one
//exists. The returned flag is true when a calibration was created.
func (r *Registry) SaveCalibration(ctx context.Context, sensorID string, in CalibrationInput) (models.Calibration, bool, error) {
	missing := []string{}
	for _, f := range []struct {
		name  string
		value *float64
	}{{"a", in.A}, {"b", in.B}, {"c", in.C}} {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	if in.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return models.Calibration{}, false, apperrors.NewMissingFields(missing...)
	}

	curve, err := models.ParseCurveType(in.Type)
	if err != nil {
		return models.Calibration{}, false, apperrors.NewInvalidValue("type", err)
	}

	sensor, err := r.requireSensor(ctx, sensorID)
	if err != nil {
		return models.Calibration{}, false, err
	}

	c := models.Calibration{
		SensorID:    sensorID,
		A:           *in.A,
		B:           *in.B,
		C:           *in.C,
		Type:        curve,
		ScaledBy100: in.ScaledBy100,
		Sensor:      sensor,
	}

	existing, err := r.calibrationOf(ctx, sensor)
	if err != nil {
		return models.Calibration{}, false, r.storeFailure("get calibration", err)
	}

	if existing != nil {
		c.ID = existing.Ref.ID
		if err := r.telemetry.Store.Update(ctx, existing.Ref, c.Fields()); err != nil {
			return models.Calibration{}, false, r.storeFailure("update calibration", err)
		}
		return c, false, nil
	}

	ref, err := r.telemetry.Store.Create(ctx, CalibrationsCollection, "", c.Fields())
	if err != nil {
		if errors.Is(err, documents.ErrAlreadyExists) {
			return models.Calibration{}, false, apperrors.NewDuplicateIdentity("calibration", sensorID)
		}
		return models.Calibration{}, false, r.storeFailure("create calibration", err)
	}
	c.ID = ref.ID

	r.log.Infof("created calibration %s for sensor %s", c.ID, sensorID)

	return c, true, nil
}
