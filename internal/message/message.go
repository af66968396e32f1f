// Package message provides the shared data structures flowing between queue
// sources, the intake router and the processing pools.
package message

// DefaultGroup is the sentinel group id used when a pointer carries no
// message group. All ungrouped pointers of a pool share this ordering domain.
const DefaultGroup = "__DEFAULT__"

// MediationType identifies how a pointer is delivered to its target.
type MediationType string

// MediationTypeHTTP delivers the pointer with an HTTP POST to the target URL.
const MediationTypeHTTP MediationType = "HTTP"

// Pointer is the immutable unit of work pulled off a backing queue. It is
// serialized as JSON on the wire; the broker-side fields are populated by the
// consuming source and never serialized.
type Pointer struct {
	// ID is the globally unique message identifier, used for deduplication.
	ID string `json:"id"`

	// PoolCode selects the processing pool that owns this pointer.
	PoolCode string `json:"poolCode"`

	// AuthToken is passed as a Bearer token on the mediation call.
	AuthToken string `json:"authToken"`

	MediationType   MediationType `json:"mediationType"`
	MediationTarget string        `json:"mediationTarget"`

	// MessageGroupID partitions pointers into ordering domains. Pointers
	// sharing a group are processed strictly in submission order; pointers in
	// different groups are processed concurrently. Empty means DefaultGroup.
	MessageGroupID string `json:"messageGroupId"`

	// RateLimitKey, when set, gates dispatch through the per-key rate
	// limiter at RateLimitPerMinute.
	RateLimitKey       string `json:"rateLimitKey,omitempty"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute,omitempty"`

	// BatchID tags all pointers routed in the same intake batch. Populated
	// during routing, not part of the wire contract.
	BatchID string `json:"-"`

	// BrokerMessageID is the transport-level message id (e.g. the SQS
	// message id), kept for in-flight tracking.
	BrokerMessageID string `json:"-"`
}

// GroupID returns the effective ordering domain of the pointer.
func (p *Pointer) GroupID() string {
	if p.MessageGroupID == "" {
		return DefaultGroup
	}
	return p.MessageGroupID
}

// Outcome is the coarse-grained mediation result the scheduler maps to an
// ack or nack disposition.
type Outcome int

const (
	// Success: the target accepted the message. Ack.
	Success Outcome = iota
	// ErrorProcess: malformed-request-class or not-ready failure, possibly
	// transient. Nack for retry.
	ErrorProcess
	// ErrorConfig: permanent-looking misconfiguration (auth, not-found,
	// method, conflict classes). Ack to stop the retry storm and surface a
	// critical warning instead.
	ErrorConfig
	// ErrorServer: server-side failure. Nack, retry after backoff.
	ErrorServer
)

// String returns the outcome name used in metrics and warnings.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case ErrorProcess:
		return "ERROR_PROCESS"
	case ErrorConfig:
		return "ERROR_CONFIG"
	case ErrorServer:
		return "ERROR_SERVER"
	default:
		return "UNKNOWN"
	}
}

// Callback is implemented by each queue source. Ack durably removes the
// message from its source queue; Nack makes it redeliverable after the
// provider delay. Both must be safe from any goroutine and must not panic.
type Callback interface {
	Ack(p *Pointer)
	Nack(p *Pointer)
}

// DelayedNacker is optionally implemented by callbacks whose transport
// supports an explicit redelivery delay (e.g. SQS visibility timeout).
type DelayedNacker interface {
	NackWithDelay(p *Pointer, seconds int)
}

// Delay bounds for nack-with-delay responses. The upper bound is the SQS
// visibility ceiling of 12 hours.
const (
	MaxDelaySeconds     = 43200
	DefaultDelaySeconds = 30
)

// MediationResponse is the optional body a target returns with HTTP 200 to
// steer the disposition: ack false keeps the message on the queue and retries
// after DelaySeconds.
type MediationResponse struct {
	Ack          bool   `json:"ack"`
	Message      string `json:"message,omitempty"`
	DelaySeconds *int   `json:"delaySeconds,omitempty"`
}

// EffectiveDelaySeconds clamps the requested delay to the valid range,
// defaulting when absent or non-positive.
func (r *MediationResponse) EffectiveDelaySeconds() int {
	if r.DelaySeconds == nil || *r.DelaySeconds <= 0 {
		return DefaultDelaySeconds
	}
	if *r.DelaySeconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	return *r.DelaySeconds
}
