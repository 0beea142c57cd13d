package types

import (
	"errors"
	"fmt"
)

// PDFErrorCode represents categorized error codes for merge operations
type PDFErrorCode string

const (
	// Source resolution errors
	ErrCodeUnsupportedInput PDFErrorCode = "UNSUPPORTED_INPUT_TYPE"
	ErrCodeNetworkFetch     PDFErrorCode = "NETWORK_FETCH_FAILURE"
	ErrCodeFileNotFound     PDFErrorCode = "FILE_NOT_FOUND"

	// Selector errors
	ErrCodeInvalidPageSelector PDFErrorCode = "INVALID_PAGE_SELECTOR"

	// Parsing errors
	ErrCodeSourceLoad     PDFErrorCode = "SOURCE_LOAD_FAILURE"
	ErrCodeMalformedPDF   PDFErrorCode = "MALFORMED_PDF"
	ErrCodeObjectNotFound PDFErrorCode = "OBJECT_NOT_FOUND"

	// Encryption errors
	ErrCodeDecryptionFailed  PDFErrorCode = "DECRYPTION_FAILED"
	ErrCodeWrongPassword     PDFErrorCode = "WRONG_PASSWORD"
	ErrCodeUnsupportedCrypto PDFErrorCode = "UNSUPPORTED_CRYPTO"

	// Collaborator errors
	ErrCodeRenderFailure PDFErrorCode = "RENDER_FAILURE"
	ErrCodeConfig        PDFErrorCode = "CONFIG_ERROR"

	// Write errors
	ErrCodeWriteError PDFErrorCode = "WRITE_ERROR"

	// I/O errors
	ErrCodeIOError PDFErrorCode = "IO_ERROR"
)

// PDFError is a structured error type for merge operations
type PDFError struct {
	Code    PDFErrorCode           // Error category code
	Message string                 // Human-readable message
	Cause   error                  // Underlying error (if any)
	Context map[string]interface{} // Additional context (value, object number, ...)
}

// Error implements the error interface
func (e *PDFError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target PDFError by code
func (e *PDFError) Is(target error) bool {
	if t, ok := target.(*PDFError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error and returns the same error for chaining
func (e *PDFError) WithContext(key string, value interface{}) *PDFError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewPDFError creates a new PDFError with the given code and message
func NewPDFError(code PDFErrorCode, message string) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
	}
}

// NewPDFErrorf creates a new PDFError with a formatted message
func NewPDFErrorf(code PDFErrorCode, format string, args ...interface{}) *PDFError {
	return &PDFError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a PDFError
func WrapError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapErrorf wraps an existing error with a PDFError and formatted message
func WrapErrorf(code PDFErrorCode, cause error, format string, args ...interface{}) *PDFError {
	return &PDFError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Sentinel errors for use with errors.Is()
var (
	ErrUnsupportedInput    = &PDFError{Code: ErrCodeUnsupportedInput}
	ErrNetworkFetch        = &PDFError{Code: ErrCodeNetworkFetch}
	ErrFileNotFound        = &PDFError{Code: ErrCodeFileNotFound}
	ErrInvalidPageSelector = &PDFError{Code: ErrCodeInvalidPageSelector}

	ErrSourceLoad     = &PDFError{Code: ErrCodeSourceLoad}
	ErrMalformedPDF   = &PDFError{Code: ErrCodeMalformedPDF}
	ErrObjectNotFound = &PDFError{Code: ErrCodeObjectNotFound}

	ErrDecryptionFailed  = &PDFError{Code: ErrCodeDecryptionFailed}
	ErrWrongPassword     = &PDFError{Code: ErrCodeWrongPassword}
	ErrUnsupportedCrypto = &PDFError{Code: ErrCodeUnsupportedCrypto}

	ErrRenderFailure = &PDFError{Code: ErrCodeRenderFailure}
	ErrConfig        = &PDFError{Code: ErrCodeConfig}
	ErrWriteError    = &PDFError{Code: ErrCodeWriteError}
	ErrIOError       = &PDFError{Code: ErrCodeIOError}
)

// IsPDFError finds the first PDFError in err's chain
func IsPDFError(err error) (*PDFError, bool) {
	var pdfErr *PDFError
	if errors.As(err, &pdfErr) {
		return pdfErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a PDFError
func GetErrorCode(err error) (PDFErrorCode, bool) {
	if pdfErr, ok := IsPDFError(err); ok {
		return pdfErr.Code, true
	}
	return "", false
}

// IsUnsupportedInput reports whether err is an UnsupportedInputType error,
// including its network and file sub-cases.
func IsUnsupportedInput(err error) bool {
	code, ok := GetErrorCode(err)
	if !ok {
		return false
	}
	switch code {
	case ErrCodeUnsupportedInput, ErrCodeNetworkFetch, ErrCodeFileNotFound:
		return true
	}
	return false
}

// IsNotFound checks if the error is an object or file not found error
func IsNotFound(err error) bool {
	code, ok := GetErrorCode(err)
	return ok && (code == ErrCodeObjectNotFound || code == ErrCodeFileNotFound)
}

// IsEncryptionError reports whether err, or any error it wraps, comes from
// the security handler.
func IsEncryptionError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrWrongPassword) ||
		errors.Is(err, ErrUnsupportedCrypto)
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the engine or its environment.
func IsClientError(err error) bool {
	code, ok := GetErrorCode(err)
	if !ok {
		return false
	}
	switch code {
	case ErrCodeConfig, ErrCodeWriteError, ErrCodeIOError:
		return false
	}
	return true
}
