package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// WriteMessage answers with a {"message": ...} body.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps a service error onto a status code. Server-side failures
// are logged and their details kept from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errdef.IsBadRequest(err):
		WriteMessage(w, http.StatusBadRequest, err.Error())
	case errdef.IsUnauthorized(err):
		WriteMessage(w, http.StatusUnauthorized, err.Error())
	case errdef.IsForbidden(err):
		WriteMessage(w, http.StatusForbidden, err.Error())
	case errdef.IsNotFound(err):
		WriteMessage(w, http.StatusNotFound, err.Error())
	case errdef.IsConflict(err):
		WriteMessage(w, http.StatusConflict, err.Error())
	case errdef.IsUnavailable(err):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Store unavailable")
		WriteMessage(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		WriteMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errdef.NewBadRequest("request body is empty")
		}
		return errdef.NewBadRequest("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errdef.NewBadRequest("invalid request: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			problems = append(problems, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "min", "max":
			problems = append(problems, fmt.Sprintf("%s must be %s %s characters", fe.Field(), bound(fe.Tag()), fe.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errdef.NewBadRequest("%s", strings.Join(problems, "; "))
}

func bound(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}
