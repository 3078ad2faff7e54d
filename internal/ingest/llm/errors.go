package llm

import "fmt"

// Kind classifies a gateway failure so callers can decide between retrying,
// failing the batch, or surfacing a configuration problem.
type Kind string

const (
	// KindTimeout means the per-call deadline elapsed
	KindTimeout Kind = "TIMEOUT"
	// KindAuth means the API rejected our credentials; retrying is pointless
	KindAuth Kind = "AUTH"
	// KindRateLimited means the API throttled us; retryable
	KindRateLimited Kind = "RATE_LIMITED"
	// KindService covers upstream 5xx and transport failures; retryable
	KindService Kind = "SERVICE"
)

// GatewayError wraps a model-call failure with its classification
type GatewayError struct {
	Kind Kind
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("llm gateway: %s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt could plausibly succeed
func (e *GatewayError) retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindService
}
