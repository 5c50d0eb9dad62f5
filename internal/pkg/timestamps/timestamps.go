//Package timestamps decodes the compact "10.MMddhhmm" timestamps sent by low
//bandwidth gateways, and the client dates sent by the other report variants.
//
//The compact format carries no year and no timezone. Field gateways send their
//local wall clock, which is moved to UTC by adding a fixed number of hours. Lab
//gateways put the same layout in their flow field and are decoded without the
//offset. Both rules are kept exactly as the stored reports were written.
package timestamps

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	//DefaultGatewayYear is the year assumed for field gateway timestamps
	DefaultGatewayYear = 2025
	//DefaultGatewayHourOffset is added to the hour sent by field gateways
	DefaultGatewayHourOffset = 6
	//DefaultLabYear is the year assumed for lab gateway timestamps
	DefaultLabYear = 2025
)

//ErrBadFormat is returned for input that does not match 10.MMddhhmm
var ErrBadFormat = errors.New("timestamp must match the format 10.MMddhhmm")

//ErrNotNumeric is returned when a lab field is neither a timestamp nor a number
var ErrNotNumeric = errors.New("value is neither a compact timestamp nor a number")

var compactPattern = regexp.MustCompile(`^10\.\d{8}$`)

//IsCompact reports whether s is in the compact gateway format
func IsCompact(s string) bool {
	return compactPattern.MatchString(s)
}

//Codec decodes compact timestamps using deployment specific constants
type Codec struct {
	GatewayYear       int
	GatewayHourOffset int
	LabYear           int
	//LabLocation is the zone lab wall clock times are interpreted in
	LabLocation *time.Location
}

//NewCodec returns a codec using the default constants
func NewCodec() Codec {
	return Codec{
		GatewayYear:       DefaultGatewayYear,
		GatewayHourOffset: DefaultGatewayHourOffset,
		LabYear:           DefaultLabYear,
		LabLocation:       time.UTC,
	}
}

type compactParts struct {
	month, day, hour, minute int
}

func splitCompact(s string) (compactParts, error) {
	if !IsCompact(s) {
		return compactParts{}, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}

	digits := s[3:]
	atoi := func(from, to int) int {
		n, _ := strconv.Atoi(digits[from:to])
		return n
	}

	return compactParts{
		month:  atoi(0, 2),
		day:    atoi(2, 4),
		hour:   atoi(4, 6),
		minute: atoi(6, 8),
	}, nil
}

//DecodeGateway decodes a field gateway timestamp. The instant is built in UTC
//for the configured year with the hour offset added. Out of range components
//roll over into the next unit, the same way the stored reports were computed.
func (c Codec) DecodeGateway(s string) (time.Time, error) {
	p, err := splitCompact(s)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(c.GatewayYear, time.Month(p.month), p.day, p.hour+c.GatewayHourOffset, p.minute, 0, 0, time.UTC), nil
}

//EncodeGateway is the inverse of DecodeGateway for instants within the configured year
func (c Codec) EncodeGateway(t time.Time) string {
	return EncodeCompact(t.Add(-time.Duration(c.GatewayHourOffset) * time.Hour))
}

//EncodeCompact formats the UTC wall clock of t in the compact layout
func EncodeCompact(t time.Time) string {
	return "10." + t.UTC().Format("01021504")
}

//LabValue is the decoded lab flow field. Exactly one of Timestamp and Flow is set.
type LabValue struct {
	Timestamp *time.Time
	Flow      *float64
}

//DecodeLab decodes the overloaded lab flow field. Input in the compact layout is
//a timestamp in the configured lab year, with no hour offset. Anything else
//must be a finite number and is returned as a flow reading.
func (c Codec) DecodeLab(s string) (LabValue, error) {
	if IsCompact(s) {
		p, _ := splitCompact(s)

		if p.month < 1 || p.month > 12 || p.hour > 23 || p.minute > 59 {
			return LabValue{}, fmt.Errorf("%w: %q is out of range", ErrBadFormat, s)
		}

		loc := c.LabLocation
		if loc == nil {
			loc = time.UTC
		}

		t := time.Date(c.LabYear, time.Month(p.month), p.day, p.hour, p.minute, 0, 0, loc)
		if p.day < 1 || t.Day() != p.day {
			return LabValue{}, fmt.Errorf("%w: %q is not a valid date", ErrBadFormat, s)
		}

		return LabValue{Timestamp: &t}, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return LabValue{}, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}

	return LabValue{Flow: &f}, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

//ParseClientDate parses the date sent with atmospheric and quality reports. It
//accepts RFC 3339, the same layout without a zone (read as UTC), a bare date,
//or a number of milliseconds since the Unix epoch.
func ParseClientDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
