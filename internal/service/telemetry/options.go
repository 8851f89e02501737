package telemetry

type trackOptions struct {
	pageID          string
	tokensUsed      int64
	cacheHitRate    *float64
	databaseQueries int
	apiCalls        int
}

// TrackOption adds pre-known details to a tracked operation
type TrackOption func(*trackOptions)

// WithPageID correlates the operation with a generated page
func WithPageID(pageID string) TrackOption {
	return func(o *trackOptions) {
		o.pageID = pageID
	}
}

// WithTokensUsed sets the token count known before the work runs
func WithTokensUsed(tokens int64) TrackOption {
	return func(o *trackOptions) {
		o.tokensUsed = tokens
	}
}

// WithCacheHitRate records the cache hit fraction for the operation
func WithCacheHitRate(rate float64) TrackOption {
	return func(o *trackOptions) {
		o.cacheHitRate = &rate
	}
}

// WithDatabaseQueries sets the number of database queries
func WithDatabaseQueries(n int) TrackOption {
	return func(o *trackOptions) {
		o.databaseQueries = n
	}
}

// WithAPICalls sets the number of outbound API calls
func WithAPICalls(n int) TrackOption {
	return func(o *trackOptions) {
		o.apiCalls = n
	}
}
