// Package mediator delivers message pointers to their mediation targets and
// classifies the outcome.
package mediator

import (
	"context"

	"github.com/ibs-source/dispatch/router/golang/internal/message"
)

// Result carries the classified outcome of one mediation attempt.
// DelaySeconds is non-zero only when the target asked for a specific
// redelivery delay alongside a nack disposition.
type Result struct {
	Outcome      message.Outcome
	DelaySeconds int
	Detail       string
}

// Mediator performs the actual delivery of a pointer. Implementations must
// classify every failure into an Outcome and must bound the call themselves;
// the worker loop never retries or times out on their behalf.
type Mediator interface {
	Process(ctx context.Context, p *message.Pointer) Result
}
