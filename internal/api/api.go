// Package api holds the wire types and header names shared between the
// gateway and its clients.
package api

// Request headers checked on authenticated operations.
const (
	KeyHeader       = "x-api-key"
	SignatureHeader = "x-signature"
	TimestampHeader = "x-timestamp"
)

type VMListResponse struct {
	VMs []string `json:"vms"`
}

type VMStateResponse struct {
	VM    string `json:"vm"`
	State string `json:"state"`
}

// VMDetailsResponse carries the management tool's output verbatim -
// the gateway doesn't interpret it.
type VMDetailsResponse struct {
	VM      string `json:"vm"`
	Details string `json:"details"`
}

type VMActionResponse struct {
	VM     string `json:"vm"`
	Action string `json:"action"`
	Output string `json:"output"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	VMCount  int    `json:"vm_count"`
	LastSync string `json:"last_sync,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response. KnownVMs is only
// populated on 404s to help operators correct typos.
type ErrorResponse struct {
	Error    string   `json:"error"`
	KnownVMs []string `json:"known_vms,omitempty"`
}
