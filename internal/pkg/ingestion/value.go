package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

//Value is a scalar as submitted by a gateway. Firmware versions disagree on
//whether numbers are sent as JSON numbers or as strings, so both are kept in
//their literal form.
type Value struct {
	raw     string
	set     bool
	null    bool
	numeric bool
}

//Text builds a Value from a string, as read from a form or an MQTT payload
func Text(s string) Value {
	return Value{raw: s, set: true}
}

//Number builds a numeric Value
func Number(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true, numeric: true}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.set = true
	b = bytes.TrimSpace(b)

	switch {
	case bytes.Equal(b, []byte("null")):
		v.null = true
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &v.raw)
	case len(b) > 0 && (b[0] == '{' || b[0] == '['):
		return fmt.Errorf("expected a scalar value, got %s", string(b))
	default:
		v.raw = string(b)
		v.numeric = true
	}

	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set || v.null {
		return []byte("null"), nil
	}
	if v.numeric {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

//Absent reports whether the value was left out or sent as null
func (v Value) Absent() bool {
	return !v.set || v.null
}

//Blank reports whether a required value is unusable: absent, or an empty string
func (v Value) Blank() bool {
	return v.Absent() || (!v.numeric && strings.TrimSpace(v.raw) == "")
}

func (v Value) String() string {
	return v.raw
}

//Float parses the value as a finite number
func (v Value) Float() (float64, error) {
	if v.Absent() {
		return 0, fmt.Errorf("value is absent")
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v.raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v.raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", v.raw)
	}

	return f, nil
}

//OptionalFloat returns nil for absent or empty values so that "not measured"
//is never stored as zero
func (v Value) OptionalFloat() (*float64, error) {
	if v.Blank() {
		return nil, nil
	}

	f, err := v.Float()
	if err != nil {
		return nil, err
	}

	return &f, nil
}

//OptionalString returns nil for absent values
func (v Value) OptionalString() *string {
	if v.Absent() {
		return nil
	}
	s := v.raw
	return &s
}
