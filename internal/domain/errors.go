package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeKnowledgeBase  = "KNOWLEDGE_BASE_ERROR"
	ErrCodeInvalidProfile = "INVALID_PROFILE"
	ErrCodeUnknownSubtype = "UNKNOWN_SUBTYPE"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// KnowledgeBaseError reports a missing, unparsable or malformed knowledge base.
// It is fatal to the request but recoverable by fixing the source.
type KnowledgeBaseError struct {
	CancerType CancerType
	Reason     string
	Err        error
}

func (e *KnowledgeBaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("knowledge base error for %s: %s: %v", e.CancerType, e.Reason, e.Err)
	}
	return fmt.Sprintf("knowledge base error for %s: %s", e.CancerType, e.Reason)
}

func (e *KnowledgeBaseError) Unwrap() error {
	return e.Err
}

// ProfileValidationError reports a missing or unrecognized identifying field
// in a patient profile.
type ProfileValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ProfileValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// UnknownSubtypeError reports a subtype key that has no curated entry.
type UnknownSubtypeError struct {
	CancerType CancerType
	Subtype    string
}

func (e *UnknownSubtypeError) Error() string {
	return fmt.Sprintf("no curated data for subtype %q of %s", e.Subtype, e.CancerType.DisplayName())
}

// NewKnowledgeBaseError creates a new KnowledgeBaseError
func NewKnowledgeBaseError(cancerType CancerType, reason string, err error) *KnowledgeBaseError {
	return &KnowledgeBaseError{CancerType: cancerType, Reason: reason, Err: err}
}

// NewProfileValidationError creates a new ProfileValidationError
func NewProfileValidationError(field, message string, value interface{}) *ProfileValidationError {
	return &ProfileValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ToAPIError maps an engine error onto its wire representation.
func ToAPIError(err error, requestID string) *APIError {
	var (
		kbErr      *KnowledgeBaseError
		profileErr *ProfileValidationError
		subtypeErr *UnknownSubtypeError
	)

	switch {
	case errors.As(err, &profileErr):
		apiErr := NewAPIError(ErrCodeInvalidProfile, profileErr.Message, profileErr.Error(), requestID)
		apiErr.Field = profileErr.Field
		return apiErr
	case errors.As(err, &subtypeErr):
		return NewAPIError(ErrCodeUnknownSubtype, "no data available for this subtype", subtypeErr.Error(), requestID)
	case errors.As(err, &kbErr):
		return NewAPIError(ErrCodeKnowledgeBase, "knowledge base unavailable", kbErr.Error(), requestID)
	default:
		return NewAPIError(ErrCodeInternalServer, "internal error", err.Error(), requestID)
	}
}
