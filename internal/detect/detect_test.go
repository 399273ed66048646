package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gardenalert/internal/game"
)

func TestChanged(t *testing.T) {
	a := game.Encode(game.StockSnapshot{game.CategorySeed: {{ItemID: "carrot", Quantity: 1}}})
	b := game.Encode(game.StockSnapshot{game.CategorySeed: {{ItemID: "carrot", Quantity: 1}}})
	c := game.Encode(game.StockSnapshot{game.CategorySeed: {{ItemID: "carrot", Quantity: 2}}})

	assert.False(t, Changed(a, b))
	assert.True(t, Changed(a, c))
	assert.True(t, Changed(nil, a))
}

func TestDetectorObserve(t *testing.T) {
	d := New()
	p1 := []byte(`{"a":1}`)
	p2 := []byte(`{"a":2}`)

	assert.True(t, d.Observe(FeedStock, p1), "first observation is a change")
	assert.False(t, d.Observe(FeedStock, p1))
	assert.True(t, d.Observe(FeedStock, p2))
	assert.False(t, d.Observe(FeedStock, p2))
	assert.True(t, d.Observe(FeedWeather, p2), "feeds are independent")
}

func TestDetectorCopiesInput(t *testing.T) {
	d := New()
	buf := []byte(`{"a":1}`)
	d.Observe(FeedStock, buf)
	buf[5] = '9'
	assert.True(t, d.Observe(FeedStock, buf))
}

func active(id string) game.WeatherSnapshot {
	return game.WeatherSnapshot{
		{WeatherID: "calm", WeatherName: "Calm"},
		{WeatherID: id, WeatherName: id, Active: true, Duration: 300},
	}
}

func TestWeatherTracker(t *testing.T) {
	w := NewWeatherTracker()

	tr, _ := w.Observe(game.WeatherSnapshot{{WeatherID: "calm"}})
	assert.Equal(t, None, tr)

	tr, ev := w.Observe(active("rain"))
	assert.Equal(t, Started, tr)
	assert.Equal(t, "rain", ev.WeatherID)
	assert.True(t, tr.Notifies())

	changedField := active("rain")
	changedField[1].Duration = 240
	tr, _ = w.Observe(changedField)
	assert.Equal(t, None, tr, "same active id never notifies twice")

	tr, ev = w.Observe(active("storm"))
	assert.Equal(t, Switched, tr)
	assert.Equal(t, "storm", ev.WeatherID)
	assert.Equal(t, "storm", w.ActiveID())

	tr, ev = w.Observe(game.WeatherSnapshot{})
	assert.Equal(t, Ended, tr)
	assert.Equal(t, "storm", ev.WeatherID)
	assert.False(t, tr.Notifies())
	assert.Equal(t, "", w.ActiveID())

	tr, _ = w.Observe(nil)
	assert.Equal(t, None, tr)
}

func TestWeatherTrackerBlankID(t *testing.T) {
	w := NewWeatherTracker()
	ev := game.WeatherEvent{WeatherName: "Rain", Active: true, Duration: 300}

	tr, _ := w.Observe(game.WeatherSnapshot{ev})
	assert.Equal(t, Started, tr)

	for _, d := range []int{285, 270} {
		ev.Duration = d
		tr, _ = w.Observe(game.WeatherSnapshot{ev})
		assert.Equal(t, None, tr)
	}

	tr, _ = w.Observe(game.WeatherSnapshot{})
	assert.Equal(t, Ended, tr)
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "switched", Switched.String())
	assert.Equal(t, "ended", Ended.String())
	assert.Equal(t, "none", None.String())
}
