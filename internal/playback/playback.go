// Package playback implements the temporal playback state machine: a cursor
// over the distinct event dates of the working set that can be moved by hand
// or advanced automatically on a fixed cadence.
package playback

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/apperr"
)

// State names the three controller states.
type State string

const (
	// StateIdle means temporal mode is not active (or there are no dates).
	StateIdle State = "idle"
	// StatePaused means temporal mode is active with a fixed cursor.
	StatePaused State = "paused"
	// StatePlaying means the cursor advances automatically.
	StatePlaying State = "playing"
)

// ErrNotTemporal is returned by Play when temporal mode is not active.
var ErrNotTemporal = errors.New("temporal mode is not active")

// Snapshot is a point-in-time view of the controller, safe to serialize.
type Snapshot struct {
	State     State     `json:"state"`
	Playing   bool      `json:"playing"`
	Current   time.Time `json:"current_date,omitzero"`
	Cursor    int       `json:"cursor_index"`
	DateCount int       `json:"date_count"`
	MinDate   time.Time `json:"min_date,omitzero"`
	MaxDate   time.Time `json:"max_date,omitzero"`
}

// RedrawFunc receives a snapshot after every tick and every manual control
// change. It runs on the controller loop and must not block.
type RedrawFunc func(Snapshot)

// Controller owns the playback state machine.
//
// Concurrency model: a single internal loop goroutine owns all mutable state
// (dates, cursor, playing flag, tick timer). Public methods communicate with
// the loop through reply channels, so ticks and control changes are strictly
// serialized and no concurrent ticks can be in flight. A Stop that arrives
// while the tick timer is sleeping is processed by the same loop, and the
// playing flag is re-checked when the timer fires, so the pending advance is
// discarded.
type Controller struct {
	interval time.Duration
	onRedraw RedrawFunc

	setDatesCh chan datesReq
	selectCh   chan selectReq
	playCh     chan chan error
	stopCh     chan chan struct{}
	modeCh     chan modeReq
	snapCh     chan chan Snapshot

	quitCh  chan struct{}
	done    chan struct{}
	closing atomic.Bool
}

type datesReq struct {
	dates []time.Time
	reply chan struct{}
}

type selectReq struct {
	date  time.Time
	reply chan struct{}
}

type modeReq struct {
	temporal bool
	reply    chan struct{}
}

// New creates a controller ticking at the given cadence and starts its loop.
func New(interval time.Duration, onRedraw RedrawFunc) *Controller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if onRedraw == nil {
		onRedraw = func(Snapshot) {}
	}
	c := &Controller{
		interval:   interval,
		onRedraw:   onRedraw,
		setDatesCh: make(chan datesReq),
		selectCh:   make(chan selectReq),
		playCh:     make(chan chan error),
		stopCh:     make(chan chan struct{}),
		modeCh:     make(chan modeReq),
		snapCh:     make(chan chan Snapshot),
		quitCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.run()
	return c
}

// SetDates replaces the date set after a fetch. Dates must be sorted
// ascending and de-duplicated (models.RecordSet.UniqueDates provides this).
// Playback resets to Paused at the earliest date; an empty set disables
// playback entirely.
func (c *Controller) SetDates(dates []time.Time) {
	reply := make(chan struct{})
	select {
	case c.setDatesCh <- datesReq{dates: dates, reply: reply}:
		<-reply
	case <-c.done:
	}
}

// Select moves the cursor to the given date, clamping to the available
// bounds and snapping to the nearest date in the set. It never fails.
func (c *Controller) Select(date time.Time) {
	reply := make(chan struct{})
	select {
	case c.selectCh <- selectReq{date: date, reply: reply}:
		<-reply
	case <-c.done:
	}
}

// Play starts automatic advancement. It is refused when temporal mode is not
// active or when fewer than two distinct dates exist.
func (c *Controller) Play() error {
	reply := make(chan error)
	select {
	case c.playCh <- reply:
		return <-reply
	case <-c.done:
		return nil
	}
}

// Stop halts automatic advancement. A stop issued during the tick delay is
// honored before the next advance.
func (c *Controller) Stop() {
	reply := make(chan struct{})
	select {
	case c.stopCh <- reply:
		<-reply
	case <-c.done:
	}
}

// SetMode switches temporal mode on or off. Leaving temporal mode forces
// Idle and clears the playing flag; entering it restores Paused when dates
// are available.
func (c *Controller) SetMode(temporal bool) {
	reply := make(chan struct{})
	select {
	case c.modeCh <- modeReq{temporal: temporal, reply: reply}:
		<-reply
	case <-c.done:
	}
}

// State returns a snapshot of the controller.
func (c *Controller) State() Snapshot {
	reply := make(chan Snapshot)
	select {
	case c.snapCh <- reply:
		return <-reply
	case <-c.done:
		return Snapshot{State: StateIdle}
	}
}

// Close stops the controller loop.
func (c *Controller) Close() {
	if c.closing.CompareAndSwap(false, true) {
		close(c.quitCh)
	}
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)

	var (
		dates    []time.Time
		cursor   int
		temporal bool
		playing  bool
		timer    *time.Timer
		tickCh   <-chan time.Time
	)

	startTimer := func() {
		timer = time.NewTimer(c.interval)
		tickCh = timer.C
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			tickCh = nil
		}
	}

	snapshot := func() Snapshot {
		s := Snapshot{State: StateIdle, Cursor: cursor, DateCount: len(dates)}
		if len(dates) > 0 {
			s.MinDate = dates[0]
			s.MaxDate = dates[len(dates)-1]
			s.Current = dates[cursor]
		}
		if temporal && len(dates) > 0 {
			s.State = StatePaused
			if playing {
				s.State = StatePlaying
				s.Playing = true
			}
		}
		return s
	}

	for {
		select {
		case <-c.quitCh:
			stopTimer()
			return

		case req := <-c.setDatesCh:
			stopTimer()
			dates = req.dates
			cursor = 0
			playing = false
			temporal = len(dates) > 0
			c.onRedraw(snapshot())
			close(req.reply)

		case req := <-c.selectCh:
			if len(dates) > 0 {
				cursor = nearest(dates, req.date)
				c.onRedraw(snapshot())
			}
			close(req.reply)

		case reply := <-c.playCh:
			switch {
			case !temporal || len(dates) == 0:
				reply <- ErrNotTemporal
			case len(dates) < 2:
				reply <- apperr.ErrPlaybackDegenerate
			case playing:
				reply <- nil
			default:
				playing = true
				startTimer()
				c.onRedraw(snapshot())
				reply <- nil
			}

		case reply := <-c.stopCh:
			if playing {
				playing = false
				stopTimer()
				c.onRedraw(snapshot())
			}
			close(reply)

		case req := <-c.modeCh:
			temporal = req.temporal
			if !temporal && playing {
				playing = false
				stopTimer()
			}
			c.onRedraw(snapshot())
			close(req.reply)

		case <-tickCh:
			timer = nil
			tickCh = nil
			// A stop processed while the timer slept cleared the flag;
			// the pending advance is discarded.
			if !playing || len(dates) == 0 {
				continue
			}
			cursor = (cursor + 1) % len(dates)
			c.onRedraw(snapshot())
			startTimer()

		case reply := <-c.snapCh:
			reply <- snapshot()
		}
	}
}

// nearest returns the index of the date in the sorted set closest to want,
// which clamps out-of-range requests to the nearest bound.
func nearest(dates []time.Time, want time.Time) int {
	best := 0
	bestDelta := absDuration(dates[0].Sub(want))
	for i := 1; i < len(dates); i++ {
		d := absDuration(dates[i].Sub(want))
		if d < bestDelta {
			best = i
			bestDelta = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
