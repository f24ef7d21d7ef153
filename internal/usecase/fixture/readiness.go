package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	cerrdefs "github.com/containerd/errdefs"

	"github.com/bnema/ephemera/internal/domain"
)

// DefaultReadinessTimeout bounds the whole wait for a container to run.
const DefaultReadinessTimeout = time.Minute

// Inspector is the slice of the runtime the readiness poller needs.
type Inspector interface {
	InspectContainer(ctx context.Context, containerID string) (*domain.InspectionState, error)
}

// ReadinessPoller inspects a container until it reports running or the timeout elapses.
type ReadinessPoller struct {
	inspector  Inspector
	timeout    time.Duration
	newBackOff func() backoff.BackOff
	log        *log.Logger
}

// PollerOption configures a ReadinessPoller.
type PollerOption func(*ReadinessPoller)

// WithReadinessTimeout overrides DefaultReadinessTimeout.
func WithReadinessTimeout(d time.Duration) PollerOption {
	return func(p *ReadinessPoller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPollInterval sets the delay between inspections: exponential from
// initial up to max. A zero initial interval retries without any delay.
func WithPollInterval(initial, maxInterval time.Duration) PollerOption {
	return func(p *ReadinessPoller) {
		p.newBackOff = newPollBackOff(initial, maxInterval)
	}
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *log.Logger) PollerOption {
	return func(p *ReadinessPoller) {
		if l != nil {
			p.log = l
		}
	}
}

// NewReadinessPoller creates a poller with a one minute bound and a capped
// exponential delay between inspections.
func NewReadinessPoller(inspector Inspector, opts ...PollerOption) *ReadinessPoller {
	p := &ReadinessPoller{
		inspector:  inspector,
		timeout:    DefaultReadinessTimeout,
		newBackOff: newPollBackOff(50*time.Millisecond, time.Second),
		log:        log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newPollBackOff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		if initial <= 0 {
			return &backoff.ZeroBackOff{}
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		if b.MaxInterval < initial {
			b.MaxInterval = initial
		}
		// The context deadline bounds the wait, not the backoff.
		b.MaxElapsedTime = 0
		return b
	}
}

// AwaitRunning returns the first inspection that reports the container running.
// Inspection errors and not-running snapshots are retried until the timeout;
// a container the runtime no longer knows fails at once. Failures are
// *domain.ContainerLaunchError carrying the last attempt's outcome.
func (p *ReadinessPoller) AwaitRunning(ctx context.Context, containerID string) (*domain.InspectionState, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		ready    *domain.InspectionState
		last     *domain.InspectionState
		lastErr  error
		attempts int
	)

	operation := func() error {
		attempts++
		state, err := p.inspector.InspectContainer(ctx, containerID)
		if err != nil {
			// An inspect cut short by our own deadline says less than the previous outcome.
			if ctx.Err() == nil || lastErr == nil {
				lastErr = err
			}
			if cerrdefs.IsNotFound(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if state == nil {
			lastErr = fmt.Errorf("%w: empty inspection result", domain.ErrContainerNotRunning)
			return lastErr
		}
		last = state
		if !state.Running {
			lastErr = fmt.Errorf("%w: status %q", domain.ErrContainerNotRunning, state.Status)
			return lastErr
		}
		ready = state
		return nil
	}

	notify := func(err error, next time.Duration) {
		p.log.Debug("Container not running yet", "container_id", domain.ShortID(containerID), "attempt", attempts, "next", next, "reason", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), notify)
	if err != nil {
		cause := lastErr
		if cause == nil {
			cause = err
		}
		p.log.Warn("Container did not reach running state", "container_id", domain.ShortID(containerID), "attempts", attempts, "timeout", p.timeout, "error", cause)
		return nil, &domain.ContainerLaunchError{ContainerID: containerID, Cause: cause, Last: last}
	}

	p.log.Debug("Container running", "container_id", domain.ShortID(containerID), "attempts", attempts)
	return ready, nil
}
