package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrExtractionExhausted = errors.New("all extraction strategies failed")
	ErrUpstreamTimeout     = errors.New("upstream timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrNoContent           = errors.New("no usable media found")
)

// ExhaustedError is returned when every strategy of a chain failed.
type ExhaustedError struct {
	Platform Platform
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Outcome))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Platform, ErrExtractionExhausted, strings.Join(parts, ", "))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExtractionExhausted }

// QuotaError is returned when admission of a new artifact is denied.
type QuotaError struct {
	Identity  string
	Limit     int64
	Usage     uint64
	Candidate uint64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %s uses %d of %d bytes, cannot add %d",
		ErrQuotaExceeded, e.Identity, e.Usage, e.Limit, e.Candidate)
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// ReasonCoder is implemented by errors that carry a machine readable reason.
type ReasonCoder interface {
	ReasonCode() string
}

// ReasonOf returns the reason code carried anywhere in err's chain.
func ReasonOf(err error) string {
	var rc ReasonCoder
	if errors.As(err, &rc) {
		return rc.ReasonCode()
	}
	return ""
}
