package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// ErrUnavailable is returned when a stream cannot be started.
var ErrUnavailable = errors.New("sensor stream unavailable")

// Handler receives samples of one stream. Seq is assigned by the caller.
type Handler func(sample fall.Sample)

// Subscription is an active stream subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is safe.
	Unsubscribe() error
}

// Source delivers periodic 3-axis samples per stream.
type Source interface {
	// Subscribe starts delivering samples of stream to handler every period.
	Subscribe(ctx context.Context, stream fall.Stream, period time.Duration, handler Handler) (Subscription, error)
}
