package shared

import "fmt"

// ErrorKind classifies every failure the gateway can surface. The kind
// is part of the client contract; the wrapped error chain is not.
type ErrorKind string

const (
	KindInvalidRequest           ErrorKind = "invalid_request"
	KindUpstreamRejected         ErrorKind = "upstream_rejected"
	KindUpstreamUnavailable      ErrorKind = "upstream_unavailable"
	KindMalformedUpstreamPayload ErrorKind = "malformed_upstream_payload"
	KindEmptyPayload             ErrorKind = "empty_payload"
	KindUnsupportedPayloadType   ErrorKind = "unsupported_payload_type"
)

// GatewayError is used when we want a specific error kind, message and
// StatusCode. Msg is the exact text returned to the client and must stay
// generic; anything useful for debugging belongs in Err, which only ever
// reaches server-side logs.
//
// Errors should be bubbled wrapped so the router can pull the outermost
// GatewayError with errors.As while the full chain stays loggable.
type GatewayError struct {
	Kind       ErrorKind
	StatusCode int
	Msg        string
	Err        error
}

func (g *GatewayError) Error() string {
	if g.Err != nil {
		return fmt.Sprintf("%s: %v", g.Msg, g.Err)
	}
	return g.Msg
}

func (g *GatewayError) Unwrap() error {
	return g.Err
}

// Invalid returns an InvalidRequest error with a caller-facing message.
// Validation messages are caller-fixable and safe to surface verbatim.
func Invalid(msg string) *GatewayError {
	return &GatewayError{Kind: KindInvalidRequest, StatusCode: 400, Msg: msg}
}

// UpstreamStatus maps a non-2xx upstream status to the matching error
// kind: the 4xx class is treated as client-attributable, everything
// else as upstream unavailability.
func UpstreamStatus(status int, err error) *GatewayError {
	if status >= 400 && status < 500 {
		return &GatewayError{
			Kind:       KindUpstreamRejected,
			StatusCode: 502,
			Msg:        "upstream rejected the request",
			Err:        err,
		}
	}
	return &GatewayError{
		Kind:       KindUpstreamUnavailable,
		StatusCode: 503,
		Msg:        "upstream provider unavailable",
		Err:        err,
	}
}

var (
	ErrUnknownTask   = Invalid("unknown task kind")
	ErrMissingPrompt = Invalid("prompt is required")
	ErrEmptyBody     = Invalid("invalid request body")

	ErrNoUpstreamContent = &GatewayError{
		Kind:       KindUpstreamUnavailable,
		StatusCode: 503,
		Msg:        "no content received from upstream",
	}
	ErrMalformedStream = &GatewayError{
		Kind:       KindMalformedUpstreamPayload,
		StatusCode: 502,
		Msg:        "upstream stream was malformed",
	}
	ErrEmptyAudio = &GatewayError{
		Kind:       KindEmptyPayload,
		StatusCode: 500,
		Msg:        "upstream returned empty audio data",
	}
	ErrNotAudio = &GatewayError{
		Kind:       KindUnsupportedPayloadType,
		StatusCode: 500,
		Msg:        "upstream returned a non-audio payload",
	}
)
