// Package loadgen drives a running valuation service with synthetic
// creators and checks that the answers it gets back are consistent.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Profiles  int           // Number of creators to generate
	Workers   int           // Number of concurrent workers
	Timeout   time.Duration // HTTP request timeout
	Settle    time.Duration // Wait between ingestion and reads
	Platform  string        // Platform of generated creators
	Seed      uint64        // 0 picks a random seed
	OutputDir string        // Where generated profiles are written; empty skips
}

// Valuation is the subset of the market value response the run checks.
type Valuation struct {
	PlatformID string `json:"platform_id"`
	Score      struct {
		Value float64 `json:"value"`
	} `json:"score"`
	Tier struct {
		Index int    `json:"index"`
		Label string `json:"label"`
	} `json:"tier"`
	EstimatedPostFeeUSD *float64 `json:"estimated_post_fee_usd"`
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Stored     int
	StoreFails int
	Valued     int
	ValueFails int
	Missing    int
	StartTime  time.Time
	Duration   time.Duration
}
