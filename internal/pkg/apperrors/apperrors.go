package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

//ErrorType identifies a class of failure that callers can react to
type ErrorType string

const (
	MissingFields      ErrorType = "missing_fields"
	UnknownDevice      ErrorType = "unknown_device"
	BadTimestampFormat ErrorType = "bad_timestamp_format"
	InvalidValue       ErrorType = "invalid_value"
	StoreUnavailable   ErrorType = "store_unavailable"
	DuplicateIdentity  ErrorType = "duplicate_identity"
	DuplicateName      ErrorType = "duplicate_name"
	NotFound           ErrorType = "not_found"
	HasDependents      ErrorType = "has_dependents"
	AlreadyAssociated  ErrorType = "already_associated"
)

//Error is a classified failure with the HTTP status it maps to and, when possible,
//the name of the request field that caused it
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"error"`
	Field   string    `json:"field,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
	Code    int       `json:"-"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

//NewMissingFields reports the required fields that were absent from a submission
func NewMissingFields(fields ...string) *Error {
	e := &Error{
		Type:    MissingFields,
		Message: "missing required fields: " + strings.Join(fields, ", "),
		Fields:  fields,
		Code:    http.StatusBadRequest,
	}
	if len(fields) > 0 {
		e.Field = fields[0]
	}
	return e
}

func NewUnknownDevice(field, deviceID string) *Error {
	return &Error{
		Type:    UnknownDevice,
		Message: fmt.Sprintf("device %q does not exist", deviceID),
		Field:   field,
		Code:    http.StatusBadRequest,
	}
}

func NewBadTimestampFormat(field string, err error) *Error {
	return &Error{
		Type:    BadTimestampFormat,
		Message: fmt.Sprintf("field %s has an invalid timestamp format", field),
		Field:   field,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

func NewInvalidValue(field string, err error) *Error {
	return &Error{
		Type:    InvalidValue,
		Message: fmt.Sprintf("field %s has an invalid value", field),
		Field:   field,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

//NewStoreUnavailable wraps a transport, permission or timeout failure from a document store
func NewStoreUnavailable(op string, err error) *Error {
	return &Error{
		Type:    StoreUnavailable,
		Message: op + " failed",
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

func NewDuplicateIdentity(kind, id string) *Error {
	return &Error{
		Type:    DuplicateIdentity,
		Message: fmt.Sprintf("a %s with id %q already exists", kind, id),
		Field:   "id",
		Code:    http.StatusConflict,
	}
}

func NewDuplicateName(kind, name string) *Error {
	return &Error{
		Type:    DuplicateName,
		Message: fmt.Sprintf("a %s named %q already exists", kind, name),
		Field:   "name",
		Code:    http.StatusConflict,
	}
}

func NewNotFound(msg string) *Error {
	return &Error{Type: NotFound, Message: msg, Code: http.StatusNotFound}
}

func NewHasDependents(msg string) *Error {
	return &Error{Type: HasDependents, Message: msg, Code: http.StatusConflict}
}

func NewAlreadyAssociated(deviceID, networkID string) *Error {
	return &Error{
		Type:    AlreadyAssociated,
		Message: fmt.Sprintf("device %q already belongs to network %q", deviceID, networkID),
		Field:   "idDevice",
		Code:    http.StatusConflict,
	}
}

//Is reports whether err is, or wraps, an *Error of type t
func Is(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

//StatusCode returns the HTTP status for err, defaulting to 500 for unclassified errors
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

//As extracts the classified error from err, if there is one
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
