package domain

// CrawlStatus is the per-scope summary shown on the operational dashboard
type CrawlStatus struct {
	ScopeID    string     `json:"scope_id"`
	State      JobState   `json:"state,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
	AssetCount int        `json:"asset_count"`
	LastError  string     `json:"last_error,omitempty"`
	Halted     bool       `json:"halted"`
	HaltReason string     `json:"halt_reason,omitempty"`
	Stats      CrawlStats `json:"stats"`
}
