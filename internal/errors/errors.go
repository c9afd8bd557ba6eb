package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline errors
	ErrorImageQualityTooLow ErrorCode = "IMAGE_QUALITY_TOO_LOW"
	ErrorInvalidImageFormat ErrorCode = "INVALID_IMAGE_FORMAT"
	ErrorOCRFailed          ErrorCode = "OCR_PROCESSING_FAILED"
	ErrorNoTextFound        ErrorCode = "NO_TEXT_FOUND"
	ErrorTimeout            ErrorCode = "TIMEOUT"
	ErrorServiceBusy        ErrorCode = "SERVICE_BUSY"
	ErrorConfiguration      ErrorCode = "CONFIGURATION_ERROR"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ExtractionError represents a structured extraction error
type ExtractionError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the ErrorCode carried by err, or empty when err is not an
// ExtractionError.
func CodeOf(err error) ErrorCode {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Factory functions for the pipeline error taxonomy

func NewImageQualityTooLowError(jobID string, score float64) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorImageQualityTooLow,
		Message:   fmt.Sprintf("Image quality score %.2f below minimum", score),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"quality_score": score,
		},
	}
}

func NewInvalidImageFormatError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorInvalidImageFormat,
		Message:   "Image could not be decoded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorOCRFailed,
		Message:   "Text recognition failed",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewNoTextFoundError(jobID string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorNoTextFound,
		Message:   "No text detected in image",
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewTimeoutError(jobID string, duration time.Duration, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorTimeout,
		Message:   fmt.Sprintf("Extraction timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewServiceBusyError(jobID string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorServiceBusy,
		Message:   "An extraction run is already in flight on this instance",
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewConfigurationError(message string) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorConfiguration,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewStorageFailedError(jobID string, cause error) *ExtractionError {
	return &ExtractionError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store extraction results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ExtractionError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
