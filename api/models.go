package api

import "github.com/jmcleod/ironpki/journal"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OperationResponse is returned by every mutating endpoint and carries the
// tool's captured stdout.
type OperationResponse struct {
	Output string `json:"output"`
}

// InitPKIRequest is the JSON body for POST /pki/init. Force defaults to true.
type InitPKIRequest struct {
	Force *bool `json:"force,omitempty"`
}

// BuildCARequest is the JSON body for POST /ca.
type BuildCARequest struct {
	CommonName string `json:"common_name,omitempty"`
	Password   string `json:"password,omitempty"`
}

// IssueCertRequest is the JSON body for POST /certs/{type}.
type IssueCertRequest struct {
	Name       string `json:"name"`
	CommonName string `json:"common_name,omitempty"`
	Password   string `json:"password,omitempty"`
	CAPassword string `json:"ca_password,omitempty"`
}

// RevokeCertRequest is the JSON body for POST /certs/{name}/revoke.
type RevokeCertRequest struct {
	Reason     string `json:"reason,omitempty"`
	CAPassword string `json:"ca_password,omitempty"`
}

// RenewCertRequest is the JSON body for POST /certs/{name}/renew.
type RenewCertRequest struct {
	CommonName string `json:"common_name,omitempty"`
	Password   string `json:"password,omitempty"`
	CAPassword string `json:"ca_password,omitempty"`
}

// GenCRLRequest is the JSON body for POST /crl.
type GenCRLRequest struct {
	CAPassword string `json:"ca_password,omitempty"`
}

// JournalPage is the response for GET /journal.
type JournalPage struct {
	Entries []journal.Entry `json:"entries"`
	PaginationMeta
}
