package metrics

// BackfillUsage counts how a range request was satisfied.
type BackfillUsage struct {
	CacheHits    int `json:"cacheHits"`
	Backfilled   int `json:"backfilled"`
	LookupErrors int `json:"lookupErrors,omitempty"`
}

// IsZero reports whether usage data is absent.
func (u BackfillUsage) IsZero() bool {
	return u.CacheHits == 0 && u.Backfilled == 0 && u.LookupErrors == 0
}
