package ingestion

import (
	"errors"
	"net/url"
	"time"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/apperrors"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/timestamps"
)

//Variant names a kind of report
type Variant string

const (
	Atmospheric Variant = "atmospheric"
	FlowField   Variant = "flow"
	FlowLab     Variant = "flow/lab"
	Quality     Variant = "quality"
)

//Variants lists every report variant that can be ingested
var Variants = []Variant{Atmospheric, FlowField, FlowLab, Quality}

//Submission is an incoming report before validation
type Submission interface {
	Variant() Variant
	//Device returns the request field naming the device and its value
	Device() (field, id string)

	missing() []string
	decode(codec timestamps.Codec, device documents.Ref, now time.Time) (models.Report, error)
}

//NewSubmission returns an empty submission for a variant, ready to be decoded into
func NewSubmission(v Variant) (Submission, bool) {
	switch v {
	case Atmospheric:
		return &AtmosphericSubmission{}, true
	case FlowField:
		return &FlowFieldSubmission{}, true
	case FlowLab:
		return &FlowLabSubmission{}, true
	case Quality:
		return &QualitySubmission{}, true
	}
	return nil, false
}

//FromForm builds a submission for v from url encoded form values. Keys left
//out of the form stay absent.
func FromForm(v Variant, form url.Values) (Submission, bool) {
	s, ok := NewSubmission(v)
	if !ok {
		return nil, false
	}

	for name, target := range formFields(s) {
		if values, present := form[name]; present && len(values) > 0 {
			*target = Text(values[0])
		}
	}

	return s, true
}

//formFields maps the wire names of a submission to its values
func formFields(s Submission) map[string]*Value {
	switch s := s.(type) {
	case *AtmosphericSubmission:
		return map[string]*Value{
			"idDevice":    &s.DeviceID,
			"temperature": &s.Temperature,
			"humidity":    &s.Humidity,
			"pressure":    &s.Pressure,
			"light":       &s.Light,
			"uvradiation": &s.UVRadiation,
			"date":        &s.Date,
		}
	case *FlowFieldSubmission:
		return map[string]*Value{
			"id_device":     &s.DeviceID,
			"id_sensor":     &s.SensorID,
			"flowBajoCosto": &s.FlowLowCost,
			"flowAltoCosto": &s.FlowHighCost,
			"timestamp":     &s.Timestamp,
		}
	case *FlowLabSubmission:
		return map[string]*Value{
			"id_device": &s.DeviceID,
			"flow":      &s.Flow,
			"id_sensor": &s.SensorID,
		}
	case *QualitySubmission:
		return map[string]*Value{
			"idDevice":        &s.DeviceID,
			"conductivity":    &s.Conductivity,
			"dissolvedSolids": &s.DissolvedSolids,
			"flow":            &s.Flow,
			"salinity":        &s.Salinity,
			"temperature":     &s.Temperature,
			"turbidity":       &s.Turbidity,
			"waterLevel":      &s.WaterLevel,
			"pH":              &s.PH,
			"date":            &s.Date,
		}
	}
	return nil
}

type required struct {
	name  string
	value Value
}

func missingOf(fields ...required) []string {
	missing := []string{}
	for _, f := range fields {
		if f.value.Blank() {
			missing = append(missing, f.name)
		}
	}
	return missing
}

type optional struct {
	name   string
	value  Value
	target **float64
}

func decodeOptionals(fields ...optional) error {
	for _, f := range fields {
		v, err := f.value.OptionalFloat()
		if err != nil {
			return apperrors.NewInvalidValue(f.name, err)
		}
		*f.target = v
	}
	return nil
}

func decodeRequiredFloat(name string, value Value) (float64, error) {
	f, err := value.Float()
	if err != nil {
		return 0, apperrors.NewInvalidValue(name, err)
	}
	return f, nil
}

func decodeClientDate(name string, value Value) (time.Time, error) {
	t, err := timestamps.ParseClientDate(value.String())
	if err != nil {
		return time.Time{}, apperrors.NewBadTimestampFormat(name, err)
	}
	return t, nil
}

//AtmosphericSubmission is the body of POST /reports/atmospheric
type AtmosphericSubmission struct {
	DeviceID    Value `json:"idDevice"`
	Temperature Value `json:"temperature"`
	Humidity    Value `json:"humidity"`
	Pressure    Value `json:"pressure"`
	Light       Value `json:"light"`
	UVRadiation Value `json:"uvradiation"`
	Date        Value `json:"date"`
}

func (s *AtmosphericSubmission) Variant() Variant { return Atmospheric }

func (s *AtmosphericSubmission) Device() (string, string) { return "idDevice", s.DeviceID.String() }

func (s *AtmosphericSubmission) missing() []string {
	return missingOf(required{"idDevice", s.DeviceID}, required{"date", s.Date})
}

func (s *AtmosphericSubmission) decode(codec timestamps.Codec, device documents.Ref, now time.Time) (models.Report, error) {
	r := models.AtmosphericReport{Device: device, ServerTimestamp: now}

	err := decodeOptionals(
		optional{"temperature", s.Temperature, &r.Temperature},
		optional{"humidity", s.Humidity, &r.Humidity},
		optional{"pressure", s.Pressure, &r.Pressure},
		optional{"light", s.Light, &r.Light},
		optional{"uvradiation", s.UVRadiation, &r.UVRadiation},
	)
	if err != nil {
		return nil, err
	}

	if r.Date, err = decodeClientDate("date", s.Date); err != nil {
		return nil, err
	}

	return r, nil
}

//FlowFieldSubmission is the body of POST /reports/flow
type FlowFieldSubmission struct {
	DeviceID     Value `json:"id_device"`
	SensorID     Value `json:"id_sensor"`
	FlowLowCost  Value `json:"flowBajoCosto"`
	FlowHighCost Value `json:"flowAltoCosto"`
	Timestamp    Value `json:"timestamp"`
}

func (s *FlowFieldSubmission) Variant() Variant { return FlowField }

func (s *FlowFieldSubmission) Device() (string, string) { return "id_device", s.DeviceID.String() }

func (s *FlowFieldSubmission) missing() []string {
	return missingOf(
		required{"id_device", s.DeviceID},
		required{"flowBajoCosto", s.FlowLowCost},
		required{"flowAltoCosto", s.FlowHighCost},
		required{"timestamp", s.Timestamp},
	)
}

func (s *FlowFieldSubmission) decode(codec timestamps.Codec, device documents.Ref, now time.Time) (models.Report, error) {
	r := models.FlowFieldReport{Device: device, ServerTimestamp: now}

	var err error
	if r.FlowLowCost, err = decodeRequiredFloat("flowBajoCosto", s.FlowLowCost); err != nil {
		return nil, err
	}
	if r.FlowHighCost, err = decodeRequiredFloat("flowAltoCosto", s.FlowHighCost); err != nil {
		return nil, err
	}

	r.ClientTimestamp, err = codec.DecodeGateway(s.Timestamp.String())
	if err != nil {
		return nil, apperrors.NewBadTimestampFormat("timestamp", err)
	}

	return r, nil
}

//FlowLabSubmission is the body of POST /reports/flow/lab. Flow carries either
//a reading or a compact timestamp.
type FlowLabSubmission struct {
	DeviceID Value `json:"id_device"`
	Flow     Value `json:"flow"`
	SensorID Value `json:"id_sensor"`
}

func (s *FlowLabSubmission) Variant() Variant { return FlowLab }

func (s *FlowLabSubmission) Device() (string, string) { return "id_device", s.DeviceID.String() }

func (s *FlowLabSubmission) missing() []string {
	return missingOf(required{"id_device", s.DeviceID}, required{"flow", s.Flow})
}

func (s *FlowLabSubmission) decode(codec timestamps.Codec, device documents.Ref, now time.Time) (models.Report, error) {
	r := models.FlowLabReport{
		Device:          device,
		SensorID:        s.SensorID.OptionalString(),
		Date:            now,
		ServerTimestamp: now,
	}

	value, err := codec.DecodeLab(s.Flow.String())
	if err != nil {
		if errors.Is(err, timestamps.ErrNotNumeric) {
			return nil, apperrors.NewInvalidValue("flow", err)
		}
		return nil, apperrors.NewBadTimestampFormat("flow", err)
	}

	if value.Timestamp != nil {
		r.Date = *value.Timestamp
	}
	r.Flow = value.Flow

	return r, nil
}

//QualitySubmission is the body of POST /reports/quality
type QualitySubmission struct {
	DeviceID        Value `json:"idDevice"`
	Conductivity    Value `json:"conductivity"`
	DissolvedSolids Value `json:"dissolvedSolids"`
	Flow            Value `json:"flow"`
	Salinity        Value `json:"salinity"`
	Temperature     Value `json:"temperature"`
	Turbidity       Value `json:"turbidity"`
	WaterLevel      Value `json:"waterLevel"`
	PH              Value `json:"pH"`
	Date            Value `json:"date"`
}

func (s *QualitySubmission) Variant() Variant { return Quality }

func (s *QualitySubmission) Device() (string, string) { return "idDevice", s.DeviceID.String() }

func (s *QualitySubmission) missing() []string {
	return missingOf(required{"idDevice", s.DeviceID}, required{"date", s.Date})
}

func (s *QualitySubmission) decode(codec timestamps.Codec, device documents.Ref, now time.Time) (models.Report, error) {
	r := models.QualityReport{Device: device, ServerTimestamp: now}

	err := decodeOptionals(
		optional{"conductivity", s.Conductivity, &r.Conductivity},
		optional{"dissolvedSolids", s.DissolvedSolids, &r.DissolvedSolids},
		optional{"flow", s.Flow, &r.Flow},
		optional{"salinity", s.Salinity, &r.Salinity},
		optional{"temperature", s.Temperature, &r.Temperature},
		optional{"turbidity", s.Turbidity, &r.Turbidity},
		optional{"waterLevel", s.WaterLevel, &r.WaterLevel},
		optional{"pH", s.PH, &r.PH},
	)
	if err != nil {
		return nil, err
	}

	if r.Date, err = decodeClientDate("date", s.Date); err != nil {
		return nil, err
	}

	return r, nil
}
