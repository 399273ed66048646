// Package upstream obtains stock and weather state from the game API, either
// by polling HTTP endpoints or by holding a websocket open.
package upstream

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gardenalert/internal/game"
)

// Sink receives every decoded payload.
type Sink func(game.Payload)

// Source drives ingestion until ctx is done.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// keyHeader carries the optional API key on HTTP requests; the stream sends
// it as a query parameter of the same name.
const keyHeader = "jstudio-key"

// deliver shields the source loop from a panicking sink.
func deliver(log *zap.Logger, sink Sink, p game.Payload) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("payload handler panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	sink(p)
}
