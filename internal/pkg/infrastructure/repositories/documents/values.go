package documents

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	kindNull   = "null"
	kindString = "string"
	kindNumber = "number"
	kindBool   = "bool"
	kindTime   = "time"
	kindRef    = "ref"
	kindRefs   = "refs"
)

type encodedValue struct {
	Kind  string          `json:"k"`
	Value json.RawMessage `json:"v,omitempty"`
}

//normalize converts a field value to one of the canonical types held in Fields
func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, bool, float64, Ref:
		return val, nil
	case time.Time:
		return val.UTC(), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC(), nil
	case []Ref:
		if val == nil {
			return nil, nil
		}
		return append([]Ref(nil), val...), nil
	case *float64:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case *string:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	}

	return nil, fmt.Errorf("unsupported field value of type %T", v)
}

//Normalize converts every value in fields to its canonical type
func Normalize(fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	for name, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if f, ok := nv.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil, fmt.Errorf("field %s: non finite number", name)
		}
		out[name] = nv
	}
	return out, nil
}

//IndexKey returns the string form used for equality matching. Values that
//cannot be compared for equality (lists) are not indexed.
func IndexKey(v interface{}) (string, bool) {
	nv, err := normalize(v)
	if err != nil {
		return "", false
	}

	switch val := nv.(type) {
	case nil:
		return kindNull, true
	case string:
		return kindString + ":" + val, true
	case bool:
		return kindBool + ":" + strconv.FormatBool(val), true
	case float64:
		return kindNumber + ":" + strconv.FormatFloat(val, 'g', -1, 64), true
	case time.Time:
		return kindTime + ":" + val.Format(time.RFC3339Nano), true
	case Ref:
		return kindRef + ":" + val.String(), true
	}

	return "", false
}

func matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		want, ok := IndexKey(f.Value)
		if !ok {
			return false
		}
		v, present := fields[f.Field]
		if !present {
			return false
		}
		got, ok := IndexKey(v)
		if !ok || got != want {
			return false
		}
	}
	return true
}

//Encode serializes normalized fields, keeping the type of each value
func Encode(fields Fields) ([]byte, error) {
	out := make(map[string]encodedValue, len(fields))

	for name, v := range fields {
		var (
			ev  encodedValue
			err error
		)

		switch val := v.(type) {
		case nil:
			ev.Kind = kindNull
		case string:
			ev.Kind = kindString
			ev.Value, err = json.Marshal(val)
		case bool:
			ev.Kind = kindBool
			ev.Value, err = json.Marshal(val)
		case float64:
			ev.Kind = kindNumber
			ev.Value, err = json.Marshal(val)
		case time.Time:
			ev.Kind = kindTime
			ev.Value, err = json.Marshal(val.Format(time.RFC3339Nano))
		case Ref:
			ev.Kind = kindRef
			ev.Value, err = json.Marshal(val)
		case []Ref:
			ev.Kind = kindRefs
			ev.Value, err = json.Marshal(val)
		default:
			err = fmt.Errorf("unsupported field value of type %T", v)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		out[name] = ev
	}

	return json.Marshal(out)
}

//Decode is the inverse of Encode
func Decode(body []byte) (Fields, error) {
	encoded := map[string]encodedValue{}
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, err
	}

	fields := make(Fields, len(encoded))
	for name, ev := range encoded {
		var (
			v   interface{}
			err error
		)

		switch ev.Kind {
		case kindNull:
			v = nil
		case kindString:
			var s string
			err = json.Unmarshal(ev.Value, &s)
			v = s
		case kindBool:
			var b bool
			err = json.Unmarshal(ev.Value, &b)
			v = b
		case kindNumber:
			var f float64
			err = json.Unmarshal(ev.Value, &f)
			v = f
		case kindTime:
			var s string
			if err = json.Unmarshal(ev.Value, &s); err == nil {
				var t time.Time
				t, err = time.Parse(time.RFC3339Nano, s)
				v = t
			}
		case kindRef:
			var r Ref
			err = json.Unmarshal(ev.Value, &r)
			v = r
		case kindRefs:
			var refs []Ref
			err = json.Unmarshal(ev.Value, &refs)
			v = refs
		default:
			err = fmt.Errorf("unknown value kind %q", ev.Kind)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", name, err)
		}
		fields[name] = v
	}

	return fields, nil
}

func copyFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if refs, ok := v.([]Ref); ok {
			v = append([]Ref(nil), refs...)
		}
		out[k] = v
	}
	return out
}
