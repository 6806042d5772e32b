// Package rest holds the wire DTOs for the HTTP surface, kept distinct
// from the domain entities they're converted to/from in
// internal/server/convert.go.
package rest

// InspectRequest is the POST /inspect body.
type InspectRequest struct {
	APIKey   string  `json:"apiKey"`
	URL      string  `json:"url,omitempty"`
	A        string  `json:"a,omitempty"`
	D        string  `json:"d,omitempty"`
	S        string  `json:"s,omitempty"`
	M        string  `json:"m,omitempty"`
	Priority int     `json:"priority,omitempty"`
	PriceKey string  `json:"priceKey,omitempty"`
	Price    *uint64 `json:"price,omitempty"`
}

// StatsResponse is the GET /stats body.
type StatsResponse struct {
	BotsOnline              int `json:"bots_online"`
	BotsTotal               int `json:"bots_total"`
	QueueSize               int `json:"queue_size"`
	QueueConcurrency        int `json:"queue_concurrency"`
	CurrentlyProcessingSize int `json:"currently_processing_size"`
}

// RelogResponse is the GET /relog body.
type RelogResponse struct {
	IssuedRelog bool `json:"issued_relog"`
}
