package response

import (
	"net/http"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
)

func TestOKWithData(t *testing.T) {
	data := map[string]string{"key": "value"}
	resp := OKWithData(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestError(t *testing.T) {
	msg := "something went wrong"
	resp := Error(msg)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, msg, resp.Error)
	assert.Nil(t, resp.Data)
}

func TestErrorKind(t *testing.T) {
	resp := ErrorKind("not_due")

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "not_due", resp.Error)
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{"validation_error", http.StatusUnprocessableEntity},
		{"plan_not_found", http.StatusNotFound},
		{"no_active_subscription", http.StatusNotFound},
		{"unauthorized", http.StatusForbidden},
		{"plan_inactive", http.StatusConflict},
		{"plan_full", http.StatusConflict},
		{"duplicate_subscription", http.StatusConflict},
		{"not_due", http.StatusConflict},
		{"insufficient_funds", http.StatusConflict},
		{"insufficient_allowance", http.StatusConflict},
		{"unsupported_token", http.StatusConflict},
		{"transient", http.StatusServiceUnavailable},
		{"unknown", http.StatusInternalServerError},
		{"no-such-kind", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForKind(tt.kind))
		})
	}
}

func TestValidationError(t *testing.T) {
	type TestStruct struct {
		Name string `validate:"required,alphanum"`
		Age  string `validate:"numeric"`
	}

	v := validator.New()
	ts := TestStruct{
		Name: "!!!",
		Age:  "twenty",
	}

	err := v.Struct(ts)
	assert.Error(t, err)

	validationErrors := err.(validator.ValidationErrors)
	resp := ValidationError(validationErrors)

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "field Name can contain only numbers and letters")
	assert.Contains(t, resp.Error, "field Age can contain only numbers")
}

func TestValidationErrorRequired(t *testing.T) {
	type TestStruct struct {
		Name string `validate:"required"`
	}

	v := validator.New()
	ts := TestStruct{}

	err := v.Struct(ts)
	assert.Error(t, err)

	validationErrors := err.(validator.ValidationErrors)
	resp := ValidationError(validationErrors)

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "field Name is a required field")
}
