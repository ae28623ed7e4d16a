package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/ironpki/journal"
	"github.com/jmcleod/ironpki/pki"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 64 * 1024

// decodeJSON decodes an optional JSON body into a T. An empty body yields
// the zero value. On failure it writes the response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return v, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

var errCAPasswordThrottled = errors.New("too many failed CA password attempts")

// guardCA rejects clients locked out by the CA password limiter. It returns
// the client key to pass to noteCAResult.
func (a *API) guardCA(w http.ResponseWriter, r *http.Request, event AuditEvent) (string, bool) {
	client := a.clientIP(r)
	if blocked, retryAfter := a.limiter.check(client); blocked {
		a.audit.log(AuditCAPasswordThrottled, r, errCAPasswordThrottled,
			slog.String("operation", string(event)),
			slog.String("client", client))
		writeRateLimited(w, retryAfter)
		return client, false
	}
	return client, true
}

func (a *API) noteCAResult(client string, err error) {
	switch {
	case errors.Is(err, pki.ErrBadCAPassword):
		a.limiter.recordFailure(client)
	case err == nil:
		a.limiter.recordSuccess(client)
	}
}

func (a *API) respond(w http.ResponseWriter, out string, err error) {
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{Output: out})
}

// InitPKI handles POST /pki/init.
func (a *API) InitPKI(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[InitPKIRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	force := true
	if req.Force != nil {
		force = *req.Force
	}

	a.mu.Lock()
	out, err := a.svc.InitPKI(r.Context(), force)
	a.mu.Unlock()

	a.audit.log(AuditPKIInitialized, r, err, slog.Bool("force", force))
	a.respond(w, out, err)
}

// BuildCA handles POST /ca.
func (a *API) BuildCA(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[BuildCARequest](w, r, maxBodySize)
	if !ok {
		return
	}

	a.mu.Lock()
	out, err := a.svc.BuildCA(r.Context(), pki.BuildCARequest{
		CommonName: req.CommonName,
		Password:   req.Password,
	})
	a.mu.Unlock()

	a.audit.log(AuditCABuilt, r, err,
		slog.String("common_name", req.CommonName),
		slog.Bool("encrypted", req.Password != ""))
	a.respond(w, out, err)
}

// GetCACertificate handles GET /ca.
func (a *API) GetCACertificate(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	pem, err := a.svc.CACertificate()
	a.mu.Unlock()
	if err != nil {
		mapError(w, err)
		return
	}
	writePEM(w, pem)
}

// IssueServerCert handles POST /certs/server.
func (a *API) IssueServerCert(w http.ResponseWriter, r *http.Request) {
	a.issue(w, r, pki.CertServer)
}

// IssueClientCert handles POST /certs/client.
func (a *API) IssueClientCert(w http.ResponseWriter, r *http.Request) {
	a.issue(w, r, pki.CertClient)
}

func (a *API) issue(w http.ResponseWriter, r *http.Request, typ pki.CertType) {
	client, ok := a.guardCA(w, r, AuditCertIssued)
	if !ok {
		return
	}
	req, ok := decodeJSON[IssueCertRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	in := pki.IssueRequest{
		Name:       req.Name,
		CommonName: req.CommonName,
		Password:   req.Password,
		CAPassword: req.CAPassword,
	}

	a.mu.Lock()
	var (
		out string
		err error
	)
	if typ == pki.CertServer {
		out, err = a.svc.CreateServer(r.Context(), in)
	} else {
		out, err = a.svc.CreateClient(r.Context(), in)
	}
	a.mu.Unlock()
	a.noteCAResult(client, err)

	a.audit.log(AuditCertIssued, r, err,
		slog.String("name", req.Name),
		slog.String("type", string(typ)))
	a.respond(w, out, err)
}

// RevokeCert handles POST /certs/{name}/revoke. An empty body revokes with
// reason "unspecified".
func (a *API) RevokeCert(w http.ResponseWriter, r *http.Request) {
	client, ok := a.guardCA(w, r, AuditCertRevoked)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	req, ok := decodeJSON[RevokeCertRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	reason := pki.ReasonUnspecified
	if req.Reason != "" {
		reason = pki.RevocationReason(req.Reason)
	}

	a.mu.Lock()
	out, err := a.svc.Revoke(r.Context(), pki.RevokeRequest{
		Name:       name,
		Reason:     reason,
		CAPassword: req.CAPassword,
	})
	a.mu.Unlock()
	a.noteCAResult(client, err)

	a.audit.log(AuditCertRevoked, r, err,
		slog.String("name", name),
		slog.String("reason", string(reason)))
	a.respond(w, out, err)
}

// RenewCert handles POST /certs/{name}/renew.
func (a *API) RenewCert(w http.ResponseWriter, r *http.Request) {
	client, ok := a.guardCA(w, r, AuditCertRenewed)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	req, ok := decodeJSON[RenewCertRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	a.mu.Lock()
	out, err := a.svc.Renew(r.Context(), pki.RenewRequest{
		Name:       name,
		CommonName: req.CommonName,
		Password:   req.Password,
		CAPassword: req.CAPassword,
	})
	a.mu.Unlock()
	a.noteCAResult(client, err)

	a.audit.log(AuditCertRenewed, r, err, slog.String("name", name))
	a.respond(w, out, err)
}

// GenCRL handles POST /crl.
func (a *API) GenCRL(w http.ResponseWriter, r *http.Request) {
	client, ok := a.guardCA(w, r, AuditCRLGenerated)
	if !ok {
		return
	}
	req, ok := decodeJSON[GenCRLRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	a.mu.Lock()
	out, err := a.svc.GenCRL(r.Context(), req.CAPassword)
	a.mu.Unlock()
	a.noteCAResult(client, err)

	a.audit.log(AuditCRLGenerated, r, err)
	a.respond(w, out, err)
}

// GetCRL handles GET /crl.
func (a *API) GetCRL(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	pem, err := a.svc.CRL()
	a.mu.Unlock()
	if err != nil {
		mapError(w, err)
		return
	}
	writePEM(w, pem)
}

// Status handles GET /status.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	st, err := a.svc.Status()
	a.mu.Unlock()
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListJournal handles GET /journal. Query parameters: limit, offset and
// order (asc or desc).
func (a *API) ListJournal(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "journal is not configured", Code: "no_journal"})
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.journal.Entries()
	if err != nil {
		mapError(w, err)
		return
	}
	items, meta := paginate(entries, page)
	if items == nil {
		items = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, JournalPage{Entries: items, PaginationMeta: meta})
}
