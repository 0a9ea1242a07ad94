package webhook

import (
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

// Status is a Job's position in its delivery lifecycle:
// Pending -> InFlight -> {Succeeded | Pending (retry) | DeadLettered}.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusSucceeded
	StatusFailed
	StatusDeadLettered
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// AttemptRecord is one entry in a Job's delivery history.
type AttemptRecord struct {
	Attempt    int
	At         time.Time
	StatusCode int
	Err        string
	Duration   time.Duration
}

// Job is one (endpoint, event) delivery obligation.
type Job struct {
	ID          string
	EndpointID  string
	Event       event.Event
	Attempt     int
	NextAttempt time.Time
	Status      Status
	LastError   string
	History     []AttemptRecord

	// streamKey is the event's stream id (empty if it carries none);
	// laneIndex hashes it together with EndpointID, so jobs for the same
	// (endpoint, stream) pair land on the same queue and stay serialized.
	streamKey string

	// seq is assigned by JobQueue.Push in enqueue order and breaks ties
	// between jobs with equal NextAttempt, giving FIFO fairness across
	// endpoints sharing a lane.
	seq int64
}

// maxResponseBodyPrefix bounds Delivery.ResponseBody per the external
// interface contract.
const maxResponseBodyPrefix = 1024

// Delivery is an append-only log entry for one attempt against an
// endpoint.
type Delivery struct {
	JobID        string
	EndpointID   string
	Attempt      int
	StatusCode   int
	Latency      time.Duration
	ResponseBody string
	At           time.Time
	Err          string
}

func truncateBody(b []byte) string {
	if len(b) > maxResponseBodyPrefix {
		b = b[:maxResponseBodyPrefix]
	}
	return string(b)
}
