package usecase

import (
	"context"
	"errors"
	"time"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/domain/repository"
	"AnomalyReplay/internal/services/windowing"
	applogger "AnomalyReplay/pkg/logger"
)

// ErrDriverClosed is returned by controls once Run has returned.
var ErrDriverClosed = errors.New("playback driver closed")

// ViewPublisher is the downstream of the driver, normally the view pipeline.
type ViewPublisher interface {
	Publish(ctx context.Context, v *models.View) error
	Reset()
}

type action string

const (
	actPlay   action = "play"
	actPause  action = "pause"
	actStop   action = "stop"
	actSpeed  action = "speed"
	actStatus action = "status"
	actView   action = "view"
)

type command struct {
	act   action
	speed float64
	zoom  models.TimeRange
	reply chan result
}

type result struct {
	status models.PlaybackStatus
	view   *models.View
	err    error
}

// Driver runs the playback loop. One goroutine (Run) owns the session;
// controls are handed to it over a channel and answered synchronously, so a
// control never interleaves with a tick. Ticks are scheduled on a timer and
// the wait between ticks is the only suspension point.
type Driver struct {
	session *Session
	out     ViewPublisher
	store   repository.SessionStore
	metrics repository.Metrics
	log     *applogger.Logger

	cmds chan command
	done chan struct{}

	timer *time.Timer
	tickC <-chan time.Time
	ticks int
}

type DriverOption func(*Driver)

func WithSessionStore(st repository.SessionStore) DriverOption {
	return func(d *Driver) { d.store = st }
}

func WithDriverLogger(l *applogger.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDriver(session *Session, out ViewPublisher, metrics repository.Metrics, opts ...DriverOption) *Driver {
	d := &Driver{
		session: session,
		out:     out,
		metrics: metrics,
		log:     applogger.Nop(),
		cmds:    make(chan command),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.Component("playback")
	return d
}

// Run restores the persisted cursor, publishes the initial view and serves
// ticks and controls until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)

	d.timer = time.NewTimer(time.Hour)
	d.timer.Stop()
	defer d.timer.Stop()

	d.restore(ctx)
	d.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			d.persist(context.Background())
			d.log.Info("playback loop stopped", applogger.Int("index", d.session.Index()), applogger.Int("ticks", d.ticks))
			return nil
		case c := <-d.cmds:
			c.reply <- d.handle(ctx, c)
		case <-d.tickC:
			d.tickC = nil
			d.tick(ctx)
		}
	}
}

func (d *Driver) Play(ctx context.Context) (models.PlaybackStatus, error) {
	return d.control(ctx, command{act: actPlay})
}

func (d *Driver) Pause(ctx context.Context) (models.PlaybackStatus, error) {
	return d.control(ctx, command{act: actPause})
}

func (d *Driver) Stop(ctx context.Context) (models.PlaybackStatus, error) {
	return d.control(ctx, command{act: actStop})
}

func (d *Driver) SetSpeed(ctx context.Context, speed float64) (models.PlaybackStatus, error) {
	return d.control(ctx, command{act: actSpeed, speed: speed})
}

func (d *Driver) Status(ctx context.Context) (models.PlaybackStatus, error) {
	return d.control(ctx, command{act: actStatus})
}

// View returns the view for the current state. zoom only applies to the
// analysis view.
func (d *Driver) View(ctx context.Context, zoom models.TimeRange) (*models.View, error) {
	r, err := d.send(ctx, command{act: actView, zoom: zoom})
	if err != nil {
		return nil, err
	}
	return r.view, r.err
}

// Dataset exposes the immutable dataset for read-only consumers.
func (d *Driver) Dataset() *models.Dataset { return d.session.Dataset() }

func (d *Driver) control(ctx context.Context, c command) (models.PlaybackStatus, error) {
	r, err := d.send(ctx, c)
	if err != nil {
		return models.PlaybackStatus{}, err
	}
	return r.status, r.err
}

func (d *Driver) send(ctx context.Context, c command) (result, error) {
	c.reply = make(chan result, 1)
	select {
	case d.cmds <- c:
	case <-d.done:
		return result{}, ErrDriverClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (d *Driver) handle(ctx context.Context, c command) result {
	s := d.session
	switch c.act {
	case actPlay:
		if s.Play() {
			d.metrics.RecordControl(string(c.act))
			d.schedule(0)
			d.log.Info("playback started", applogger.Int("index", s.Index()), applogger.Float64("speed", float64(s.Speed())))
		}
	case actPause:
		if s.Pause() {
			d.metrics.RecordControl(string(c.act))
			d.cancelTick()
			d.publish(ctx)
			d.persist(ctx)
			d.log.Info("playback paused", applogger.Int("index", s.Index()))
		}
	case actStop:
		d.metrics.RecordControl(string(c.act))
		s.Stop()
		d.cancelTick()
		d.out.Reset()
		d.publish(ctx)
		d.persist(ctx)
		d.log.Info("playback stopped")
	case actSpeed:
		if err := s.SetSpeed(c.speed); err != nil {
			d.metrics.RecordError("control_speed")
			return result{status: s.Status(), err: err}
		}
		d.metrics.RecordControl(string(c.act))
		if !s.Running() {
			d.publish(ctx)
		}
		d.persist(ctx)
	case actView:
		v, err := SelectView(s, s.Index(), c.zoom)
		return result{status: s.Status(), view: v, err: err}
	}
	return result{status: s.Status()}
}

func (d *Driver) tick(ctx context.Context) {
	s := d.session
	start := time.Now()
	prev, next, err := s.Tick()
	if err != nil {
		return
	}
	d.ticks++

	ds := s.Dataset()
	live, err := windowing.BuildLive(ds, prev, next, s.WindowSize())
	if err != nil {
		d.metrics.RecordError("tick_view")
		d.log.Error("tick view failed", applogger.Int("index", next), applogger.Error(err))
	} else {
		// the frame was produced while running even if this tick reached the end
		st := s.Status()
		st.State = models.StateRunning
		if err := d.out.Publish(ctx, &models.View{Mode: models.ViewLive, Status: st, Live: live}); err != nil {
			d.metrics.RecordError("tick_publish")
		}
	}
	d.metrics.RecordTick(ds.Source, next)
	d.metrics.RecordAlertCount(ds.Source, ds.AlertsBefore(next))
	d.metrics.RecordLatency("tick", time.Since(start).Seconds())

	if !s.Running() {
		d.log.Info("end of data, playback paused", applogger.Int("index", next), applogger.Int("ticks", d.ticks))
		d.publish(ctx)
		d.persist(ctx)
		return
	}
	d.schedule(s.Speed().Interval())
}

func (d *Driver) schedule(after time.Duration) {
	d.timer.Reset(after)
	d.tickC = d.timer.C
}

func (d *Driver) cancelTick() {
	d.timer.Stop()
	d.tickC = nil
}

// publish sends the view for the current state.
func (d *Driver) publish(ctx context.Context) {
	v, err := SelectView(d.session, d.session.Index(), models.TimeRange{})
	if err != nil {
		d.metrics.RecordError("select_view")
		d.log.Error("select view failed", applogger.Error(err))
		return
	}
	if err := d.out.Publish(ctx, v); err != nil {
		d.metrics.RecordError("publish_view")
	}
}

func (d *Driver) persist(ctx context.Context) {
	if d.store == nil {
		return
	}
	if err := d.store.Save(ctx, d.session.Snapshot()); err != nil {
		d.metrics.RecordError("session_save")
		d.log.Warn("session save failed", applogger.Error(err))
	}
}

func (d *Driver) restore(ctx context.Context) {
	if d.store == nil {
		return
	}
	st, ok, err := d.store.Load(ctx)
	if err != nil {
		d.metrics.RecordError("session_load")
		d.log.Warn("session load failed, starting fresh", applogger.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := d.session.Restore(st); err != nil {
		d.log.Warn("persisted session ignored", applogger.Error(err))
		return
	}
	d.log.Info("session restored", applogger.Int("index", st.Index), applogger.Float64("speed", float64(d.session.Speed())))
}
