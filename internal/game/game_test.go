package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStockDropsUnknownAndClamps(t *testing.T) {
	body := []byte(`{
		"seed_stock":[{"item_id":"carrot","display_name":"Carrot","quantity":5},{"item_id":" ","quantity":1}],
		"gear_stock":[{"item_id":"trowel","display_name":"Trowel","quantity":-2}],
		"mystery_stock":[{"item_id":"x","quantity":1}]
	}`)
	snap, err := DecodeStock(body)
	require.NoError(t, err)

	assert.Len(t, snap, 2)
	assert.Equal(t, []StockItem{{ItemID: "carrot", DisplayName: "Carrot", Quantity: 5}}, snap[CategorySeed])
	assert.Equal(t, 0, snap[CategoryGear][0].Quantity)
	assert.Equal(t, []string{"carrot", "trowel"}, snap.ItemIDs())
}

func TestDecodeStockRejectsMalformed(t *testing.T) {
	_, err := DecodeStock([]byte(`{"seed_stock":"nope"}`))
	assert.Error(t, err)
	_, err = DecodeStock([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeWeatherRequiresKey(t *testing.T) {
	_, err := DecodeWeather([]byte(`{"other":[]}`))
	assert.Error(t, err)

	w, err := DecodeWeather([]byte(`{"weather":null}`))
	require.NoError(t, err)
	assert.NotNil(t, w)
	assert.Empty(t, w)
}

func TestDecodePayloadPartial(t *testing.T) {
	p, err := DecodePayload([]byte(`{"weather":[{"weather_id":"rain","weather_name":"Rain","active":true,"duration":300}]}`))
	require.NoError(t, err)
	assert.Nil(t, p.Stock)
	require.NotNil(t, p.Weather)

	ev, ok := p.Weather.Active()
	require.True(t, ok)
	assert.Equal(t, "rain", ev.WeatherID)
	assert.Equal(t, 5, ev.Minutes())

	p, err = DecodePayload([]byte(`{"egg_stock":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, p.Stock)
	assert.Nil(t, p.Weather)
	assert.False(t, p.Empty())
}

func TestDecodeWeatherFallsBackToName(t *testing.T) {
	w, err := DecodeWeather([]byte(`{"weather":[{"weather_id":" ","weather_name":"Rain","active":true,"duration":300}]}`))
	require.NoError(t, err)
	require.Len(t, w, 1)
	assert.Equal(t, "Rain", w[0].WeatherID)
}

func TestWeatherActiveTakesFirst(t *testing.T) {
	w := WeatherSnapshot{
		{WeatherID: "calm"},
		{WeatherID: "rain", Active: true},
		{WeatherID: "storm", Active: true},
	}
	ev, ok := w.Active()
	require.True(t, ok)
	assert.Equal(t, "rain", ev.WeatherID)

	_, ok = WeatherSnapshot{{WeatherID: "calm"}}.Active()
	assert.False(t, ok)
}

func TestMinutesFloors(t *testing.T) {
	assert.Equal(t, 1, WeatherEvent{Duration: 119}.Minutes())
	assert.Equal(t, 0, WeatherEvent{Duration: 59}.Minutes())
	assert.Equal(t, 0, WeatherEvent{Duration: -5}.Minutes())
}

func TestEncodeIsDeterministic(t *testing.T) {
	a := StockSnapshot{CategoryGear: {{ItemID: "b", Quantity: 1}}, CategorySeed: {{ItemID: "a", Quantity: 2}}}
	b := StockSnapshot{CategorySeed: {{ItemID: "a", Quantity: 2}}, CategoryGear: {{ItemID: "b", Quantity: 1}}}
	assert.Equal(t, Encode(a), Encode(b))
}

func TestFlattenFollowsCategoryOrder(t *testing.T) {
	s := StockSnapshot{
		CategoryEgg:  {{ItemID: "egg"}},
		CategorySeed: {{ItemID: "seed"}},
		CategoryGear: {{ItemID: "gear"}},
	}
	var ids []string
	for _, it := range s.Flatten() {
		ids = append(ids, it.ItemID)
	}
	assert.Equal(t, []string{"seed", "gear", "egg"}, ids)
	assert.Equal(t, 3, s.Len())
}

func TestCatalogLookupFallback(t *testing.T) {
	c := NewCatalog("https://img.test/{id}.png")
	c.Replace([]CatalogEntry{{ItemID: "carrot", DisplayName: "Carrot", Icon: "https://cdn/carrot.png"}})

	assert.Equal(t, CatalogEntry{ItemID: "carrot", DisplayName: "Carrot", Icon: "https://cdn/carrot.png"}, c.Lookup("carrot"))

	e := c.Lookup("golden_watering-can")
	assert.Equal(t, "Golden Watering Can", e.DisplayName)
	assert.Equal(t, "https://img.test/golden_watering-can.png", e.Icon)
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.UpdatedAt().IsZero())
}

func TestCatalogEntriesSorted(t *testing.T) {
	c := NewCatalog("")
	c.Replace([]CatalogEntry{{ItemID: "b"}, {ItemID: "a"}})
	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ItemID)
	assert.Contains(t, c.IconURL("a"), "growagarden/image/a")
}

func TestDecodeCatalogSkipsBlankIDs(t *testing.T) {
	entries, err := DecodeCatalog([]byte(`[{"item_id":"carrot","display_name":"Carrot"},{"item_id":""}]`))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
