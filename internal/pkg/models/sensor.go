package models

import (
	"fmt"
	"time"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
)

//Sensor belongs to a device through a reference held on the sensor
type Sensor struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Device *documents.Ref `json:"-"`
	Ref    documents.Ref  `json:"-"`
}

//SensorFromDocument maps a stored sensor, looking for the owning device under
//the field given
func SensorFromDocument(doc documents.Document, ownerField string) Sensor {
	s := Sensor{ID: doc.Ref.ID, Name: doc.Text("Nombre"), Ref: doc.Ref}
	if s.Name == "" {
		s.Name = doc.Text("Name")
	}
	if owner, ok := doc.Reference(ownerField); ok {
		s.Device = &owner
	}
	return s
}

//CurveType is the shape of a calibration curve
type CurveType string

const (
	CurveLinear      CurveType = "linear"
	CurveQuadratic   CurveType = "quadratic"
	CurveExponential CurveType = "exponential"
	CurveLogarithmic CurveType = "logarithmic"
)

//ParseCurveType accepts the curve names and their Spanish equivalents
func ParseCurveType(s string) (CurveType, error) {
	switch s {
	case "lineal", "linear":
		return CurveLinear, nil
	case "cuadratica", "quadratic":
		return CurveQuadratic, nil
	case "exponencial", "exponential":
		return CurveExponential, nil
	case "logaritmica", "logarithmic":
		return CurveLogarithmic, nil
	}
	return "", fmt.Errorf("unknown calibration curve type %q", s)
}

//Calibration holds the coefficients of one sensor's calibration curve. The
//values are stored and returned, never evaluated here.
type Calibration struct {
	ID          string        `json:"id"`
	SensorID    string        `json:"sensorId"`
	A           float64       `json:"a"`
	B           float64       `json:"b"`
	C           float64       `json:"c"`
	Type        CurveType     `json:"type"`
	ScaledBy100 bool          `json:"scaledBy100"`
	Sensor      documents.Ref `json:"-"`
}

func (c Calibration) Fields() documents.Fields {
	return documents.Fields{
		"a":              c.A,
		"b":              c.B,
		"c":              c.C,
		"tipo":           string(c.Type),
		"escaladoPor100": c.ScaledBy100,
		"idSensor":       c.Sensor,
	}
}

func CalibrationFromDocument(doc documents.Document) Calibration {
	c := Calibration{
		ID:          doc.Ref.ID,
		Type:        CurveType(doc.Text("tipo")),
		ScaledBy100: doc.Bool("escaladoPor100"),
	}
	c.A, _ = doc.Float("a")
	c.B, _ = doc.Float("b")
	c.C, _ = doc.Float("c")
	if sensor, ok := doc.Reference("idSensor"); ok {
		c.Sensor = sensor
		c.SensorID = sensor.ID
	}
	return c
}

//Network groups devices of the management store
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

//Membership links one device to one network
type Membership struct {
	ID      string        `json:"id"`
	Device  documents.Ref `json:"-"`
	Network documents.Ref `json:"-"`
}

func (m Membership) Fields() documents.Fields {
	return documents.Fields{"idDevice": m.Device, "idNet": m.Network}
}

//MeasureFrequency is the sampling configuration of a device. A nil Value means
//the configuration exists but does not set a frequency.
type MeasureFrequency struct {
	DeviceID string   `json:"-"`
	Value    *float64 `json:"measureFrequency"`
}

//MoistureReading is one soil moisture report uploaded by a sensor
type MoistureReading struct {
	ID            string     `json:"id"`
	Collection    string     `json:"collection"`
	UploadedAt    *time.Time `json:"uploadedAt"`
	OriginalDate  string     `json:"originalDate,omitempty"`
	Calibrated    *float64   `json:"calibrated"`
	Original      *float64   `json:"original"`
	Note          string     `json:"note,omitempty"`
	IsCalibration bool       `json:"isCalibration"`
}

//MoistureReadingFromDocument maps a report from either moisture collection. Old
//reports carry the calibrated value as valor.
func MoistureReadingFromDocument(doc documents.Document) MoistureReading {
	r := MoistureReading{
		ID:            doc.Ref.ID,
		Collection:    doc.Ref.Collection,
		OriginalDate:  doc.Text("FechaOriginal"),
		Note:          doc.Text("nota"),
		IsCalibration: doc.Bool("isCalibration"),
	}

	if t, ok := doc.Time("HoraSubida"); ok {
		r.UploadedAt = &t
	}
	if v, ok := doc.Float("HumedadCal"); ok {
		r.Calibrated = &v
	} else if v, ok := doc.Float("valor"); ok {
		r.Calibrated = &v
	}
	if v, ok := doc.Float("HumedadOrg"); ok {
		r.Original = &v
	}

	return r
}
