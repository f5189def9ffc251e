package services

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrQuotaExceeded = errors.New("active job quota exceeded")
	ErrJobCompleted  = errors.New("job already completed")
	ErrUploadTooBig  = errors.New("upload exceeds maximum size")
	ErrMissingRaw    = errors.New("asset has no raw upload")
)

// UnsupportedLanguageError carries the offending language for the 422 body.
type UnsupportedLanguageError struct {
	Lang string
}

func (e *UnsupportedLanguageError) Error() string {
	return "Unsupported language requested: " + e.Lang
}
