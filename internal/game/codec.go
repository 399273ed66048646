package game

import (
	"encoding/json"
	"fmt"
	"strings"
)

const weatherKey = "weather"

// Encode serializes a snapshot deterministically. Struct fields keep their
// declaration order and encoding/json sorts map keys.
func Encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// only reachable with unsupported types; callers pass game types
		return []byte(fmt.Sprintf("%#v", v))
	}
	return b
}

// DecodeStock parses a stock endpoint body. Unknown top level keys are ignored.
func DecodeStock(data []byte) (StockSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stock: %w", err)
	}
	snap, _, err := stockFromRaw(raw)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// DecodeWeather parses a weather endpoint body: {"weather":[...]}.
func DecodeWeather(data []byte) (WeatherSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}
	w, ok, err := weatherFromRaw(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("decode weather: missing %q key", weatherKey)
	}
	return w, nil
}

// DecodePayload parses a stream message, which may carry any subset of the
// stock categories and the weather list.
func DecodePayload(data []byte) (Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	var p Payload
	snap, found, err := stockFromRaw(raw)
	if err != nil {
		return Payload{}, err
	}
	if found {
		p.Stock = snap
	}
	w, ok, err := weatherFromRaw(raw)
	if err != nil {
		return Payload{}, err
	}
	if ok {
		p.Weather = w
	}
	return p, nil
}

func stockFromRaw(raw map[string]json.RawMessage) (StockSnapshot, bool, error) {
	snap := make(StockSnapshot)
	found := false
	for _, c := range Categories {
		msg, ok := raw[string(c)]
		if !ok {
			continue
		}
		found = true
		var items []StockItem
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", c, err)
		}
		clean := make([]StockItem, 0, len(items))
		for _, it := range items {
			it.ItemID = strings.TrimSpace(it.ItemID)
			if it.ItemID == "" {
				continue
			}
			if it.Quantity < 0 {
				it.Quantity = 0
			}
			clean = append(clean, it)
		}
		snap[c] = clean
	}
	return snap, found, nil
}

func weatherFromRaw(raw map[string]json.RawMessage) (WeatherSnapshot, bool, error) {
	msg, ok := raw[weatherKey]
	if !ok {
		return nil, false, nil
	}
	var events []WeatherEvent
	if err := json.Unmarshal(msg, &events); err != nil {
		return nil, false, fmt.Errorf("decode weather: %w", err)
	}
	if events == nil {
		events = WeatherSnapshot{}
	}
	// A blank id falls back to the name so the event stays identifiable.
	for i := range events {
		events[i].WeatherID = strings.TrimSpace(events[i].WeatherID)
		if events[i].WeatherID == "" {
			events[i].WeatherID = strings.TrimSpace(events[i].WeatherName)
		}
	}
	return events, true, nil
}

// DecodeCatalog parses the item info endpoint: a list of entries.
func DecodeCatalog(data []byte) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		e.ItemID = strings.TrimSpace(e.ItemID)
		if e.ItemID != "" {
			out = append(out, e)
		}
	}
	return out, nil
}
