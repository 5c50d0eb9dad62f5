package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThatMissingFieldsIsAttributedToTheFirstField(t *testing.T) {
	err := NewMissingFields("idDevice", "date")

	assert.Equal(t, "idDevice", err.Field)
	assert.Equal(t, []string{"idDevice", "date"}, err.Fields)
	assert.Equal(t, http.StatusBadRequest, err.Code)
}

func TestThatWrappedErrorsAreClassified(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("while resolving: %w", NewStoreUnavailable("resolve device", cause))

	assert.True(t, Is(err, StoreUnavailable))
	assert.False(t, Is(err, UnknownDevice))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.True(t, errors.Is(err, cause))
}

func TestThatUnclassifiedErrorsMapToInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestThatDuplicateNameIsAConflict(t *testing.T) {
	err := NewDuplicateName("device", "caja-1")
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.True(t, Is(err, DuplicateName))
}
