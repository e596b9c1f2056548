package ppool

import "fmt"

// ErrorKind categorizes a validation failure. It's a category, not a Go
// error type: callers switch on Kind rather than type-asserting.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrTimeout
	ErrConnectionRefused
	ErrHTTPStatus
	ErrParseError
	ErrIPLeak
	ErrOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrTimeout:
		return "timeout"
	case ErrConnectionRefused:
		return "connection-refused"
	case ErrHTTPStatus:
		return "http-status"
	case ErrParseError:
		return "parse-error"
	case ErrIPLeak:
		return "ip-leak"
	case ErrOther:
		return "other"
	default:
		return "unknown"
	}
}

// ProbeError carries the category and detail of a single probe failure.
// It implements error so it can be wrapped with fmt.Errorf("...: %w") at
// call sites that need to, but the Validator itself never propagates it —
// it's recorded on the ValidationResult instead (spec: "never throws").
type ProbeError struct {
	Kind       ErrorKind
	StatusCode int    // set when Kind == ErrHTTPStatus
	Detail     string // free-form detail; always set for ErrOther, often for other kinds, printed by Error only for ErrOther
}

func (e *ProbeError) Error() string {
	switch e.Kind {
	case ErrHTTPStatus:
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	case ErrOther:
		return fmt.Sprintf("probe failed: %s", e.Detail)
	default:
		return e.Kind.String()
	}
}

// QuotaExceededError is returned by SearchIndexFetcher when the upstream
// API answers 429 Too Many Requests. The Registry counts it as a fetch
// error like any other (including toward the per-source backoff); it is
// never fatal. Geolocation lookups do not return it.
type QuotaExceededError struct {
	Source string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for source %q", e.Source)
}

// ConfigError is returned by Validate on a Config and is the one error
// kind in this package that's meant to be fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}
