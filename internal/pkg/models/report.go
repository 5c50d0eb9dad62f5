package models

import (
	"time"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
)

//Report is an immutable telemetry document ready to be written
type Report interface {
	Collection() string
	Fields() documents.Fields
}

const (
	AtmosphericReportCollection = "AtmosphericReport"
	FlowFieldReportCollection   = "FlowReportsIsla"
	FlowLabReportCollection     = "FlowReportsLab"
	QualityReportCollection     = "QualityReport"

	//MoistureCollection and MoistureSCCollection hold soil moisture reports in
	//the telemetry store. They are written by the datalogger firmware directly.
	MoistureCollection   = "Humedad"
	MoistureSCCollection = "HumedadSC"
)

//AtmosphericReport is a weather station reading. Nil measurements were not taken.
type AtmosphericReport struct {
	Device          documents.Ref
	Temperature     *float64
	Humidity        *float64
	Pressure        *float64
	Light           *float64
	UVRadiation     *float64
	Date            time.Time
	ServerTimestamp time.Time
}

func (r AtmosphericReport) Collection() string {
	return AtmosphericReportCollection
}

func (r AtmosphericReport) Fields() documents.Fields {
	return documents.Fields{
		"idDevice":        r.Device,
		"Temperature":     r.Temperature,
		"Humidity":        r.Humidity,
		"Pressure":        r.Pressure,
		"Light":           r.Light,
		"UVRadiation":     r.UVRadiation,
		"Date":            r.Date,
		"serverTimestamp": r.ServerTimestamp,
	}
}

//FlowFieldReport is a pair of flow readings from a field gateway. SensorRefs is
//the set of sensors attached to the gateway when the report was received.
type FlowFieldReport struct {
	Device          documents.Ref
	FlowLowCost     float64
	FlowHighCost    float64
	ClientTimestamp time.Time
	ServerTimestamp time.Time
	SensorRefs      []documents.Ref
}

func (r FlowFieldReport) Collection() string {
	return FlowFieldReportCollection
}

func (r FlowFieldReport) Fields() documents.Fields {
	fields := documents.Fields{
		"idDevice":        r.Device,
		"flowBajoCosto":   r.FlowLowCost,
		"flowAltoCosto":   r.FlowHighCost,
		"clientTimestamp": r.ClientTimestamp,
		"serverTimestamp": r.ServerTimestamp,
		"sensorRefs":      nil,
	}

	if len(r.SensorRefs) > 0 {
		fields["sensorRefs"] = r.SensorRefs
	}

	return fields
}

//FlowLabReport carries either a flow reading or, when the gateway sent a
//compact timestamp in the flow field, only a date
type FlowLabReport struct {
	Device          documents.Ref
	SensorID        *string
	Flow            *float64
	Date            time.Time
	ServerTimestamp time.Time
}

func (r FlowLabReport) Collection() string {
	return FlowLabReportCollection
}

func (r FlowLabReport) Fields() documents.Fields {
	return documents.Fields{
		"idDevice":        r.Device,
		"idSensor":        r.SensorID,
		"Flow":            r.Flow,
		"Date":            r.Date,
		"serverTimestamp": r.ServerTimestamp,
	}
}

//QualityReport is a water quality reading. Nil measurements were not taken.
type QualityReport struct {
	Device          documents.Ref
	Conductivity    *float64
	DissolvedSolids *float64
	Flow            *float64
	Salinity        *float64
	Temperature     *float64
	Turbidity       *float64
	WaterLevel      *float64
	PH              *float64
	Date            time.Time
	ServerTimestamp time.Time
}

func (r QualityReport) Collection() string {
	return QualityReportCollection
}

func (r QualityReport) Fields() documents.Fields {
	return documents.Fields{
		"idDevice":        r.Device,
		"Conductivity":    r.Conductivity,
		"DissolvedSolids": r.DissolvedSolids,
		"Flow":            r.Flow,
		"Salinity":        r.Salinity,
		"Temperature":     r.Temperature,
		"Turbidity":       r.Turbidity,
		"WaterLevel":      r.WaterLevel,
		"pH":              r.PH,
		"Date":            r.Date,
		"serverTimestamp": r.ServerTimestamp,
	}
}

//FlowReading is a stored flow field report as shown to operators
type FlowReading struct {
	ID              string     `json:"id"`
	ClientTimestamp *time.Time `json:"clientTimestamp"`
	ServerTimestamp *time.Time `json:"serverTimestamp"`
	FlowLowCost     *float64   `json:"flowBajoCosto"`
	FlowHighCost    *float64   `json:"flowAltoCosto"`
	SensorIDs       []string   `json:"sensorIds,omitempty"`
}

func FlowReadingFromDocument(doc documents.Document) FlowReading {
	r := FlowReading{ID: doc.Ref.ID}

	if t, ok := doc.Time("clientTimestamp"); ok {
		r.ClientTimestamp = &t
	}
	if t, ok := doc.Time("serverTimestamp"); ok {
		r.ServerTimestamp = &t
	}
	if v, ok := doc.Float("flowBajoCosto"); ok {
		r.FlowLowCost = &v
	}
	if v, ok := doc.Float("flowAltoCosto"); ok {
		r.FlowHighCost = &v
	}
	if refs, ok := doc.Fields["sensorRefs"].([]documents.Ref); ok {
		for _, ref := range refs {
			r.SensorIDs = append(r.SensorIDs, ref.ID)
		}
	}

	return r
}
