// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeRequestMalformed Code = "REQUEST_MALFORMED"
	CodeRequestInvalid   Code = "REQUEST_INVALID"

	// Identity errors
	CodeIdentityUnverified Code = "IDENTITY_UNVERIFIED"
	CodeIdentityMismatch   Code = "IDENTITY_MISMATCH"

	// Prediction errors
	CodePredictionInvalid       Code = "PREDICTION_INVALID"
	CodePredictionInvalidGame   Code = "PREDICTION_INVALID_GAME"
	CodePredictionOwnerMismatch Code = "PREDICTION_OWNER_MISMATCH"

	// Storage errors
	CodeStorageConflict    Code = "STORAGE_CONFLICT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// Task errors
	CodeTaskTokenInvalid Code = "TASK_TOKEN_INVALID"
)

// HTTPStatus maps an error code to the HTTP status the API layer reports.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeRequestMalformed, CodeRequestInvalid, CodePredictionInvalid, CodePredictionInvalidGame:
		return http.StatusBadRequest
	case CodeIdentityUnverified, CodeTaskTokenInvalid:
		return http.StatusUnauthorized
	case CodeIdentityMismatch, CodePredictionOwnerMismatch:
		return http.StatusForbidden
	case CodeStorageConflict, CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
