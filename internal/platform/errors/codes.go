package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionInactive Code = "SESSION_INACTIVE"

	// Capability errors
	CodeForbidden Code = "FORBIDDEN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// External collaborator errors
	CodeExternalFailure Code = "EXTERNAL_FAILURE"
	CodeAINotConfigured Code = "AI_NOT_CONFIGURED"

	// Recording errors
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
	CodeMalformedArtifact  Code = "MALFORMED_ARTIFACT"
	CodeRecordNotFound     Code = "RECORD_NOT_FOUND"

	// Challenge errors
	CodeChallengeNotFound Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeInvalid  Code = "CHALLENGE_INVALID"
)

// HTTPStatus maps a domain code to the status used by the privileged HTTP surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNotFound, CodeRecordNotFound, CodeChallengeNotFound:
		return http.StatusNotFound
	case CodeSessionInactive, CodeInvalidArgument, CodeChallengeInvalid, CodeAINotConfigured:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
