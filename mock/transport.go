// Package mock provides test doubles for tensorchat interfaces using
// function fields.
package mock

import (
	"context"

	"github.com/fwojciec/tensorchat"
)

// Interface compliance checks.
var (
	_ tensorchat.Transport   = (*Transport)(nil)
	_ tensorchat.FrameStream = (*FrameStream)(nil)
)

// Transport is a test double for tensorchat.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error) {
	return t.OpenFn(ctx, req)
}
