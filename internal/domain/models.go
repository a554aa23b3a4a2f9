package domain

import (
	"encoding/json"
	"time"
)

// Branch is one restaurant location configured at deploy time. TokenEnv names
// the environment variable holding its INVU credential; the token itself is
// never stored on the struct.
type Branch struct {
	Key        string `json:"key" yaml:"key"`
	SucursalID string `json:"sucursal_id" yaml:"sucursal_id"`
	TokenEnv   string `json:"-" yaml:"token_env"`
}

type SalesRow struct {
	Fecha      string  `json:"fecha"`
	SucursalID string  `json:"sucursal_id"`
	Total      float64 `json:"total"`
	COGS       float64 `json:"cogs"`
	Tickets    int     `json:"tickets"`
	Lineas     int     `json:"lineas"`
}

type Totals struct {
	Total   float64 `json:"total"`
	COGS    float64 `json:"cogs"`
	Tickets int     `json:"tickets"`
	Lineas  int     `json:"lineas"`
}

// OrderRecord is one upstream order persisted for per-order ingestion,
// keyed by (SucursalID, InvuID).
type OrderRecord struct {
	SucursalID string          `json:"sucursal_id"`
	InvuID     string          `json:"invu_id"`
	Fecha      string          `json:"fecha"`
	Total      float64         `json:"total"`
	COGS       float64         `json:"cogs"`
	Tickets    int             `json:"tickets"`
	Lineas     int             `json:"lineas"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// NormalizedOrder is the per-order view returned by the orders proxy.
type NormalizedOrder struct {
	InvuID  string  `json:"invu_id,omitempty"`
	Fecha   string  `json:"fecha"`
	Total   float64 `json:"total"`
	COGS    float64 `json:"cogs"`
	Tickets int     `json:"tickets"`
	Lineas  int     `json:"lineas"`
}

const (
	BranchNormalized = "normalized"
	BranchFailed     = "failed"
)

const (
	ReasonMissingCredential = "missing_credential"
	ReasonAuth              = "upstream_auth"
	ReasonFormat            = "upstream_format"
	ReasonTimeout           = "upstream_timeout"
	ReasonStatus            = "upstream_status"
	ReasonCanceled          = "canceled"
	ReasonInternal          = "internal"
)

// BranchSummary is the per-branch outcome of a sync run. It is reported,
// never persisted.
type BranchSummary struct {
	Branch              string     `json:"branch"`
	SucursalID          string     `json:"sucursal_id"`
	OK                  bool       `json:"ok"`
	State               string     `json:"state"`
	Reason              string     `json:"reason,omitempty"`
	Error               string     `json:"error,omitempty"`
	SourceURL           string     `json:"source_url,omitempty"`
	Requests            int        `json:"requests"`
	RawCount            int        `json:"raw_count"`
	AggregatedCount     int        `json:"aggregated_count"`
	Dropped             int        `json:"dropped"`
	Totals              *Totals    `json:"totals,omitempty"`
	CredentialExpiresAt *time.Time `json:"credential_expires_at,omitempty"`
	DurationMS          int64      `json:"duration_ms"`
}

// SyncReport is the response body of a sync run. Inserted is nil when the
// durable write failed so no partial count is ever claimed.
type SyncReport struct {
	OK        bool            `json:"ok"`
	Status    int             `json:"status"`
	RunID     string          `json:"run_id"`
	Inserted  *int            `json:"inserted,omitempty"`
	Branches  []BranchSummary `json:"branches"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	FetchedAt time.Time       `json:"fetched_at"`
	Error     string          `json:"error,omitempty"`
}

type OrdersResponse struct {
	Branch    string            `json:"branch"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	SourceURL string            `json:"source_url"`
	RawCount  int               `json:"raw_count"`
	Dropped   int               `json:"dropped"`
	Orders    []NormalizedOrder `json:"orders"`
	Cached    bool              `json:"cached"`
}

type AttendanceResponse struct {
	Branch    string           `json:"branch"`
	FIni      int64            `json:"fini"`
	FFin      int64            `json:"ffin"`
	SourceURL string           `json:"source_url"`
	Count     int              `json:"count"`
	Records   []map[string]any `json:"records"`
	Cached    bool             `json:"cached"`
}

type SalesListResponse struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Rows   []SalesRow `json:"rows"`
	Totals Totals     `json:"totals"`
}

type BranchStatus struct {
	Key                 string     `json:"key"`
	SucursalID          string     `json:"sucursal_id"`
	CredentialPresent   bool       `json:"credential_present"`
	CredentialExpiresAt *time.Time `json:"credential_expires_at,omitempty"`
	CredentialExpired   bool       `json:"credential_expired"`
}
