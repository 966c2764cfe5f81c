package model

import "time"

// Report is the top-level JSON structure written by the stats command and the
// docent summary endpoint.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Filter      Filter      `json:"filter"`
	Count       int         `json:"count"`
	Summaries   []Summary   `json:"summaries"`
	Biases      []BiasCount `json:"biases"`
}

// BiasCount is one entry of a bias-token frequency ranking.
type BiasCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}
