// Package pipeline runs the forwarding loop: it waits for heart-rate
// notifications, decodes and forwards them, records them to the configured
// sinks and reconnects when the peripheral goes quiet.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/hrbridge/internal/ble"
	"github.com/chaz8081/hrbridge/internal/heartrate"
	"github.com/chaz8081/hrbridge/internal/metrics"
)

// Reconnect causes, used as metric labels.
const (
	reasonTimeout   = "timeout"
	reasonStreamEnd = "stream_end"
)

// Connector rebuilds a session that stopped delivering notifications.
type Connector interface {
	Reconnect(ctx context.Context, prev *ble.Session) (*ble.Session, error)
}

// Forwarder sends a sample downstream and reports whether it did.
type Forwarder interface {
	Forward(s heartrate.Sample) (bool, error)
}

// Sink receives every forwarded sample.
type Sink interface {
	Record(s heartrate.Sample) error
}

// Options configures a Pipeline.
type Options struct {
	// Timeout is the longest silence tolerated before reconnecting. Zero
	// disables reconnection: the loop ends when the stream ends.
	Timeout time.Duration
	Sinks   []Sink
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Pipeline owns the active session for its whole run.
type Pipeline struct {
	connector Connector
	forwarder Forwarder
	opts      Options
}

// New creates a Pipeline.
func New(connector Connector, forwarder Forwarder, opts Options) *Pipeline {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		connector: connector,
		forwarder: forwarder,
		opts:      opts,
	}
}

// Run consumes session until ctx is done, a reconnect fails fatally, or, with
// no timeout configured, the stream ends. The session current at return is
// closed.
func (p *Pipeline) Run(ctx context.Context, session *ble.Session) error {
	defer func() { _ = session.Close() }()
	p.observeSession(session)

	var timer *time.Timer
	var timeout <-chan time.Time
	if p.opts.Timeout > 0 {
		timer = time.NewTimer(p.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	resetTimer := func() {
		if timer != nil {
			timer.Reset(p.opts.Timeout)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case data, ok := <-session.Notifications:
			if !ok {
				if p.opts.Timeout <= 0 {
					slog.Info("[PIPE] notification stream ended", "name", session.Name, "session", session.ID)
					return nil
				}
				slog.Warn("[PIPE] notification stream ended, reconnecting", "name", session.Name, "session", session.ID)
				next, err := p.reconnect(ctx, session, reasonStreamEnd)
				if err != nil {
					return err
				}
				session = next
				resetTimer()
				continue
			}
			p.handle(session, data)
			resetTimer()

		case <-timeout:
			slog.Warn("[PIPE] timed out waiting for a notification",
				"name", session.Name, "session", session.ID, "timeout", p.opts.Timeout)
			next, err := p.reconnect(ctx, session, reasonTimeout)
			if err != nil {
				return err
			}
			session = next
			resetTimer()
		}
	}
}

// reconnect replaces session. The old session is closed by the connector
// before anything else happens, so none of its notifications are handled
// afterwards.
func (p *Pipeline) reconnect(ctx context.Context, session *ble.Session, reason string) (*ble.Session, error) {
	p.opts.Metrics.Reconnects.WithLabelValues(reason).Inc()
	next, err := p.connector.Reconnect(ctx, session)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("[PIPE] reconnect failed", "address", session.Address, "error", err)
		}
		return nil, err
	}
	slog.Info("[PIPE] reconnected", "name", next.Name, "address", next.Address, "session", next.ID)
	p.observeSession(next)
	return next, nil
}

func (p *Pipeline) observeSession(s *ble.Session) {
	p.opts.Metrics.Battery.Set(float64(s.Battery))
}

// handle decodes one payload and fans it out. Nothing here is fatal.
func (p *Pipeline) handle(session *ble.Session, data []byte) {
	m := p.opts.Metrics
	m.Notifications.Inc()

	bpm, err := heartrate.Decode(data)
	if err != nil {
		m.DecodeFaults.Inc()
		slog.Warn("[PIPE] discarding notification", "name", session.Name, "payload", data, "error", err)
		return
	}
	sample := heartrate.Sample{
		BPM:     bpm,
		At:      p.opts.Now(),
		Source:  session.Address,
		Session: session.ID.String(),
	}
	m.HeartRate.Set(float64(bpm))
	slog.Debug("[PIPE] heart rate", "name", session.Name, "bpm", bpm)

	sent, err := p.forwarder.Forward(sample)
	if err != nil {
		m.SendFailures.Inc()
		slog.Warn("[PIPE] forward failed", "bpm", bpm, "error", err)
		return
	}
	if !sent {
		m.Throttled.Inc()
		return
	}
	m.Forwarded.Inc()

	for _, sink := range p.opts.Sinks {
		if err := sink.Record(sample); err != nil {
			slog.Warn("[PIPE] sink failed", "bpm", bpm, "error", err)
		}
	}
}
