package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/goalledger/internal/activity"
	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/punchamoorthee/goalledger/internal/logging"
)

const defaultActivityTimeout = 2 * time.Second

type options struct {
	recorder        activity.Recorder
	logger          *logging.Logger
	now             func() time.Time
	activityTimeout time.Duration
}

// Option configures a service.
type Option func(*options)

func WithRecorder(r activity.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now. "Today" is the UTC calendar day of the
// returned instant.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithActivityTimeout(d time.Duration) Option {
	return func(o *options) { o.activityTimeout = d }
}

func newOptions(component string, opts []Option) options {
	o := options{
		recorder:        activity.Nop{},
		logger:          logging.New(logging.DefaultConfig()),
		now:             func() time.Time { return time.Now().UTC() },
		activityTimeout: defaultActivityTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent(component)
	return o
}

func (o *options) today() time.Time {
	return domain.DateOf(o.now().UTC())
}

// record writes entries after the primary mutation has committed. It is
// detached from the caller's cancellation and bounded by its own timeout;
// failures are logged and counted, never returned.
func (o *options) record(ctx context.Context, entries ...domain.ActivityEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.activityTimeout)
	defer cancel()

	for _, e := range entries {
		if err := o.recorder.Record(ctx, e); err != nil {
			activityFailures.Inc()
			o.logger.WarnContext(ctx, "activity log write failed",
				logging.FieldOwnerID, e.OwnerID,
				logging.FieldAction, e.Action,
				logging.FieldError, err)
		}
	}
}
