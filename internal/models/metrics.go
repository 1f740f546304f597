package models

import "time"

// SystemMetrics is a JSON friendly snapshot of the process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	Transitions              uint64    `json:"transitions"`
	PortalViews              uint64    `json:"portalViews"`
	PortalUploads            uint64    `json:"portalUploads"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
