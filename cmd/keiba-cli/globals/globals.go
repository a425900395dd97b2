package globals

import (
	"context"

	"keiba-scraper/lib/diagnostics"
	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/telemetry"
)

type key struct{}

// Value is everything a command needs that is built once per process.
type Value struct {
	Settings    Settings
	Store       *racestore.Store
	Log         *fetchlog.Log
	Diagnostics diagnostics.Sink
	Telemetry   telemetry.Telemetry
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, key{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(key{}).(*Value)
}
