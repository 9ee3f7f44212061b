// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/scoring"
)

const maxBodyBytes = 1_048_576

type jsonResponse map[string]interface{}

type errorBody struct {
	Error    string                `json:"error"`
	Code     int                   `json:"code"`
	Problems []models.FieldProblem `json:"problems,omitempty"`
}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		default:
			return err
		}
	}

	if err = dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)

	return err
}

func errorResponse(scope *envelope.Scope, w http.ResponseWriter, status int, body errorBody) {
	if err := writeJSON(w, status, body, nil); err != nil {
		scope.Log.WithError(err).Error("unable to write error response")
	}
}

func badRequestResponse(scope *envelope.Scope, w http.ResponseWriter, err error) {
	errorResponse(scope, w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: models.ErrorCode(models.ErrValidation)})
}

// engineErrorResponse maps engine errors onto status codes.
func engineErrorResponse(scope *envelope.Scope, w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Code: models.ErrorCode(err)}

	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		body.Problems = validationErr.Problems
		errorResponse(scope, w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrMatchExists):
		errorResponse(scope, w, http.StatusConflict, body)
	case errors.Is(err, models.ErrNotFound):
		errorResponse(scope, w, http.StatusNotFound, body)
	case errors.Is(err, scoring.ErrEngineClosed):
		errorResponse(scope, w, http.StatusServiceUnavailable, body)
	default:
		scope.Log.WithError(err).Error("engine request failed")
		body.Error = "the server encountered a problem and could not process your request"
		errorResponse(scope, w, http.StatusInternalServerError, body)
	}
}
