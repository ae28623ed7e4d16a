// Package api exposes PKI operations over HTTP.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironpki/journal"
	"github.com/jmcleod/ironpki/pki"
)

// Service is the subset of *pki.PKI used by the handlers.
type Service interface {
	InitPKI(ctx context.Context, force bool) (string, error)
	BuildCA(ctx context.Context, req pki.BuildCARequest) (string, error)
	CreateServer(ctx context.Context, req pki.IssueRequest) (string, error)
	CreateClient(ctx context.Context, req pki.IssueRequest) (string, error)
	Revoke(ctx context.Context, req pki.RevokeRequest) (string, error)
	Renew(ctx context.Context, req pki.RenewRequest) (string, error)
	GenCRL(ctx context.Context, caPassword string) (string, error)
	Status() (*pki.Status, error)
	CACertificate() ([]byte, error)
	CRL() ([]byte, error)
}

var _ Service = (*pki.PKI)(nil)

// JournalReader lists recorded operations in order.
type JournalReader interface {
	Entries() ([]journal.Entry, error)
}

var _ JournalReader = (*journal.Journal)(nil)

// API holds the dependencies needed by the REST handlers.
type API struct {
	// mu serialises every call into the key-store; the tool does not
	// tolerate concurrent use of one directory.
	mu    sync.Mutex
	svc   Service
	audit *auditLogger

	limiter        *caPasswordLimiter
	trustedProxies []netip.Prefix
	webhook        *auditWebhook
	webhookURL     string
	webhookAuth    string
	journal        JournalReader
	auth           *tokenAuth
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithTrustedProxies sets the CIDR ranges whose X-Forwarded-For and
// X-Real-IP headers are honoured when identifying clients for CA password
// throttling. By default no proxy headers are trusted.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithAuditWebhook forwards every audit event to url as JSON. authHeader,
// if non-empty, is sent in "Header: Value" form. Call Close to drain the
// queue on shutdown.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL, a.webhookAuth = url, authHeader
	}
}

// WithJournal serves j at GET /journal.
func WithJournal(j JournalReader) Option {
	return func(a *API) {
		a.journal = j
	}
}

// WithTokenAuth requires an HS256 bearer token on every operation route.
// Reads need ScopeRead and changes need ScopeWrite. audience, if non-empty,
// must appear in the token's aud claim.
func WithTokenAuth(secret []byte, audience string) Option {
	return func(a *API) {
		if len(secret) > 0 {
			a.auth = &tokenAuth{secret: secret, audience: audience}
		}
	}
}

// New creates a new API instance.
func New(svc Service, opts ...Option) *API {
	a := &API{svc: svc, limiter: newCAPasswordLimiter()}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.webhookURL != "" {
		a.webhook = newAuditWebhook(a.webhookURL, a.webhookAuth, a.audit.logger)
		a.audit.webhook = a.webhook
	}
	return a
}

// Close flushes pending audit webhook deliveries.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.requireScope(ScopeRead))
		r.Get("/status", a.Status)
		r.Get("/ca", a.GetCACertificate)
		r.Get("/crl", a.GetCRL)
		r.Get("/journal", a.ListJournal)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireScope(ScopeWrite))
		r.Post("/pki/init", a.InitPKI)
		r.Post("/ca", a.BuildCA)
		r.Post("/certs/server", a.IssueServerCert)
		r.Post("/certs/client", a.IssueClientCert)
		r.Post("/certs/{name}/revoke", a.RevokeCert)
		r.Post("/certs/{name}/renew", a.RenewCert)
		r.Post("/crl", a.GenCRL)
	})

	return r
}
