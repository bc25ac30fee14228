package signal

import "context"

// Sink receives accepted proposals. The engine does not place orders itself;
// a sink forwards proposals to whatever consumes them.
type Sink interface {
	Submit(ctx context.Context, p *Proposal) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, p *Proposal) error

func (f SinkFunc) Submit(ctx context.Context, p *Proposal) error {
	return f(ctx, p)
}
