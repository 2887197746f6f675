package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "courier-sync/pkg/errors"
)

// Status is the reporter health indicator shown next to the share-location
// toggle on the agent console.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusWatching    Status = "watching"
	StatusDenied      Status = "denied"
	StatusError       Status = "error"
	StatusUnsupported Status = "unsupported"
)

// DropPinTimeout bounds a manual single-shot fix request.
const DropPinTimeout = 20 * time.Second

// Fix is one sampled device position.
type Fix struct {
	Lat     float64
	Lng     float64
	Speed   *float64
	Heading *float64
	At      time.Time
}

// PositionSource abstracts the device geolocation capability. Watch keeps
// sampling until the returned stop function is called; denial is reported
// through onErr with appErrors.ErrLocationDenied.
type PositionSource interface {
	Watch(onFix func(Fix), onErr func(error)) (stop func(), err error)
	Current(ctx context.Context) (Fix, error)
}

// Transmitter delivers a fix to the server, tagged with the parcel/agent
// context it was constructed with.
type Transmitter interface {
	SendFix(ctx context.Context, fix Fix) error
}

// Reporter samples device positions, throttles them and transmits them to
// the server. A failed transmission flips the status to error but never
// stops the watch; permission denial stops it.
type Reporter struct {
	source PositionSource
	tx     Transmitter

	minInterval time.Duration
	sendTimeout time.Duration

	mu       sync.Mutex
	status   Status
	stop     func()
	lastSent time.Time

	onStatus func(Status)
	log      *zap.Logger
}

type Option func(*Reporter)

// WithThrottle sets the minimum interval between transmitted fixes.
func WithThrottle(d time.Duration) Option {
	return func(r *Reporter) { r.minInterval = d }
}

// WithStatusListener registers a callback fired on every status change.
func WithStatusListener(fn func(Status)) Option {
	return func(r *Reporter) { r.onStatus = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Reporter) { r.log = log }
}

func NewReporter(source PositionSource, tx Transmitter, opts ...Option) *Reporter {
	r := &Reporter{
		source:      source,
		tx:          tx,
		minInterval: 5 * time.Second,
		sendTimeout: 10 * time.Second,
		status:      StatusIdle,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if source == nil {
		r.setStatus(StatusUnsupported)
	}
	return r
}

// StartWatch begins continuous position sampling. It reports unsupported
// synchronously when the device exposes no geolocation capability and is
// a no-op when a watch is already running.
func (r *Reporter) StartWatch() error {
	if r.source == nil {
		r.setStatus(StatusUnsupported)
		return appErrors.ErrLocationUnsupported
	}

	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	stop, err := r.source.Watch(r.handleFix, r.handleWatchError)
	if err != nil {
		if errors.Is(err, appErrors.ErrLocationUnsupported) {
			r.setStatus(StatusUnsupported)
		} else {
			r.setStatus(StatusError)
		}
		return err
	}

	r.mu.Lock()
	r.stop = stop
	r.mu.Unlock()
	r.setStatus(StatusWatching)
	return nil
}

// Stop ends the watch. Safe to call repeatedly or on a never-started
// reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}

	r.mu.Lock()
	keepStatus := r.status == StatusDenied || r.status == StatusUnsupported
	r.mu.Unlock()
	if !keepStatus {
		r.setStatus(StatusIdle)
	}
}

// DropPin requests one high-accuracy fix with a bounded timeout and
// transmits it. Timeout and denial surface as errors instead of hanging.
func (r *Reporter) DropPin(ctx context.Context) (Fix, error) {
	if r.source == nil {
		r.setStatus(StatusUnsupported)
		return Fix{}, appErrors.ErrLocationUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, DropPinTimeout)
	defer cancel()

	fix, err := r.source.Current(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			r.setStatus(StatusError)
			return Fix{}, appErrors.ErrLocationTimeout
		case errors.Is(err, appErrors.ErrLocationDenied):
			r.setStatus(StatusDenied)
			return Fix{}, err
		default:
			r.setStatus(StatusError)
			return Fix{}, err
		}
	}

	if err := r.transmit(fix); err != nil {
		return fix, err
	}
	return fix, nil
}

// Status returns the current reporter status.
func (r *Reporter) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Watching reports whether a watch is currently active.
func (r *Reporter) Watching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

func (r *Reporter) handleFix(fix Fix) {
	r.mu.Lock()
	if r.stop == nil {
		// Fix raced with Stop; the watch is gone.
		r.mu.Unlock()
		return
	}
	if !r.lastSent.IsZero() && fix.At.Sub(r.lastSent) < r.minInterval {
		r.mu.Unlock()
		return
	}
	r.lastSent = fix.At
	r.mu.Unlock()

	if err := r.transmit(fix); err != nil {
		// Transient network failure must not terminate location sharing.
		r.log.Warn("failed to transmit location fix", zap.Error(err))
		return
	}
	r.setStatus(StatusWatching)
}

func (r *Reporter) handleWatchError(err error) {
	if errors.Is(err, appErrors.ErrLocationDenied) {
		r.log.Warn("location permission denied, stopping watch")
		r.mu.Lock()
		stop := r.stop
		r.stop = nil
		r.mu.Unlock()
		if stop != nil {
			stop()
		}
		r.setStatus(StatusDenied)
		return
	}

	// Position errors other than denial are transient; keep sampling.
	r.log.Debug("transient location error", zap.Error(err))
	r.setStatus(StatusError)
}

func (r *Reporter) transmit(fix Fix) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()

	if err := r.tx.SendFix(ctx, fix); err != nil {
		r.setStatus(StatusError)
		return err
	}
	return nil
}

func (r *Reporter) setStatus(s Status) {
	r.mu.Lock()
	changed := r.status != s
	r.status = s
	onStatus := r.onStatus
	r.mu.Unlock()

	if changed && onStatus != nil {
		onStatus(s)
	}
}
