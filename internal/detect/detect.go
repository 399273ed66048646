// Package detect decides whether a new upstream observation differs from the
// previous one.
package detect

import (
	"bytes"
	"sync"

	"gardenalert/internal/game"
)

// Feed names a stream of snapshots tracked independently.
type Feed string

const (
	FeedStock   Feed = "stock"
	FeedWeather Feed = "weather"
)

// Changed compares two serialized payloads byte for byte. No semantic diff:
// any difference counts.
func Changed(prev, next []byte) bool {
	return !bytes.Equal(prev, next)
}

// Detector remembers the last serialized payload per feed.
type Detector struct {
	mu   sync.Mutex
	last map[Feed][]byte
}

func New() *Detector {
	return &Detector{last: make(map[Feed][]byte)}
}

// Observe stores encoded as the latest payload for feed and reports whether
// it differs from the previous one. The first observation is always a change.
func (d *Detector) Observe(feed Feed, encoded []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, seen := d.last[feed]
	if seen && !Changed(prev, encoded) {
		return false
	}
	d.last[feed] = append([]byte(nil), encoded...)
	return true
}

// Transition describes how the active weather event moved between snapshots.
type Transition int

const (
	None    Transition = iota // same active event, or still nothing active
	Started                   // nothing active before, something active now
	Switched                  // a different event replaced the previous one
	Ended                     // something was active, nothing is now
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Switched:
		return "switched"
	case Ended:
		return "ended"
	default:
		return "none"
	}
}

// Notifies reports whether subscribers hear about this transition. Endings
// are only logged.
func (t Transition) Notifies() bool { return t == Started || t == Switched }

// WeatherTracker keys weather notifications on the active event id so that
// refetches with unrelated field changes stay quiet.
type WeatherTracker struct {
	mu       sync.Mutex
	active   bool
	activeID string
}

func NewWeatherTracker() *WeatherTracker { return &WeatherTracker{} }

// Observe records the snapshot's active event and returns the transition
// together with that event.
func (w *WeatherTracker) Observe(snap game.WeatherSnapshot) (Transition, game.WeatherEvent) {
	ev, active := snap.Active()
	w.mu.Lock()
	defer w.mu.Unlock()
	wasActive, prev := w.active, w.activeID
	if !active {
		w.active, w.activeID = false, ""
		if wasActive {
			return Ended, game.WeatherEvent{WeatherID: prev}
		}
		return None, game.WeatherEvent{}
	}
	w.active, w.activeID = true, ev.WeatherID
	switch {
	case !wasActive:
		return Started, ev
	case prev != ev.WeatherID:
		return Switched, ev
	default:
		return None, ev
	}
}

// ActiveID is the id of the last active event seen, or "".
func (w *WeatherTracker) ActiveID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID
}
