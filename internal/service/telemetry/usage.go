package telemetry

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// Usage collects counters reported by a running operation. A nil *Usage
// ignores all updates, so work can report unconditionally.
type Usage struct {
	tokens          atomic.Int64
	databaseQueries atomic.Int64
	apiCalls        atomic.Int64
}

// UsageFromContext returns the accumulator of the tracked operation running
// with ctx, or nil outside of one
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

func withUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, usageKey{}, u)
}

// AddTokens adds language-model tokens consumed by the operation
func (u *Usage) AddTokens(n int64) {
	if u == nil || n <= 0 {
		return
	}
	u.tokens.Add(n)
}

// AddDatabaseQueries counts database round-trips
func (u *Usage) AddDatabaseQueries(n int) {
	if u == nil || n <= 0 {
		return
	}
	u.databaseQueries.Add(int64(n))
}

// AddAPICalls counts outbound API calls
func (u *Usage) AddAPICalls(n int) {
	if u == nil || n <= 0 {
		return
	}
	u.apiCalls.Add(int64(n))
}

// Tokens returns the tokens reported so far
func (u *Usage) Tokens() int64 {
	if u == nil {
		return 0
	}
	return u.tokens.Load()
}

// DatabaseQueries returns the queries reported so far
func (u *Usage) DatabaseQueries() int {
	if u == nil {
		return 0
	}
	return int(u.databaseQueries.Load())
}

// APICalls returns the API calls reported so far
func (u *Usage) APICalls() int {
	if u == nil {
		return 0
	}
	return int(u.apiCalls.Load())
}
