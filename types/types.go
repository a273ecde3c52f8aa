package types

// ---- Service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // "ready", "degraded", "stopped"
	Status string `json:"status"` // short code
	TS     int64  `json:"ts_ms"`
}

// ---- Battery log payloads ----

// LogSlot is one gauge ring-buffer slot.
type LogSlot struct {
	RingPosition uint32 `json:"pos"`
	Payload      []byte `json:"data"`
}

// LogBatch is a full ring read published on battery/<serial>/log.
type LogBatch struct {
	Serial  string    `json:"serial"`
	Entries []LogSlot `json:"entries"`
}

// SyncReport is published retained on batlog/<serial>/sync.
type SyncReport struct {
	Serial       string `json:"serial"`
	Mode         string `json:"mode"`
	Appended     int    `json:"appended"`
	Skipped      int    `json:"skipped"`
	RecordCount  uint32 `json:"record_count"`
	LastPosition uint32 `json:"last_pos"`
	TS           int64  `json:"ts_ms"`
}

// ---- Diagnostics (request/reply on batlog/diag) ----

type DiagRequest struct {
	ECC bool `json:"ecc,omitempty"` // full ECC scan; slow
}

type ECCSummary struct {
	Pages         int   `json:"pages"`
	Corrected     int   `json:"corrected"`
	Uncorrectable int   `json:"uncorrectable"`
	FirstBad      int64 `json:"first_bad"` // -1 when none
}

type Diagnostics struct {
	TotalKB   int64       `json:"total_kb"`
	UsedKB    int64       `json:"used_kb"`
	FreeKB    int64       `json:"free_kb"`
	Series    int         `json:"series"`
	BadBlocks int         `json:"bad_blocks"` // -1 when the backend has no flash
	ECC       *ECCSummary `json:"ecc,omitempty"`
}

// Generic replies
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}
