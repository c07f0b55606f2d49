package common

import "fmt"

var (
	ErrValidation        = fmt.Errorf("validation error")
	ErrNotFound          = fmt.Errorf("download not found")
	ErrInvalidState      = fmt.Errorf("invalid download state")
	ErrNotActive         = fmt.Errorf("download not active")
	ErrNotReady          = fmt.Errorf("file not ready yet")
	ErrArtifactNotFound  = fmt.Errorf("file not found on disk")
	ErrInterrupted       = fmt.Errorf("download interrupted")
	ErrExtractionTimeout = fmt.Errorf("metadata extraction timed out")
)
