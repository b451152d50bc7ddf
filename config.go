package tensorchat

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultEndpoint is the base URL of the hosted Tensorchat service.
const DefaultEndpoint = "https://api.tensorchat.io"

// Config holds the client settings. It is treated as immutable once passed
// to a constructor; constructors take a copy.
type Config struct {
	Endpoint   string // base URL; empty = DefaultEndpoint
	Credential string // opaque token sent as-is to the service

	// CallbackThrottle is the minimum interval between two OnTensorChunk
	// dispatches for the same tensor. Chunks arriving inside the interval
	// are coalesced. Coalesced text is delivered with that tensor's next
	// permitted chunk, or just before its OnTensorComplete or OnError, so
	// a tensor that goes quiet holds its pending text until then, however
	// long that takes. Frames for other tensors do not release it. Zero
	// disables throttling.
	CallbackThrottle time.Duration
}

// WithDefaults returns a copy of c with empty fields filled in.
func (c Config) WithDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	return c
}

// Validate checks universal constraints on Config. Transports that need a
// credential check it themselves.
func (c Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint %q: %v: %w", c.Endpoint, err, ErrValidation)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("endpoint %q must be an absolute URL: %w", c.Endpoint, ErrValidation)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint scheme must be http or https, got %q: %w", u.Scheme, ErrValidation)
		}
	}
	if c.CallbackThrottle < 0 {
		return fmt.Errorf("callback throttle must be non-negative, got %s: %w", c.CallbackThrottle, ErrValidation)
	}
	return nil
}
