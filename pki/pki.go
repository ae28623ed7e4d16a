// Package pki drives an Easy-RSA key-store: initialising it, building a CA,
// issuing, renewing and revoking certificates and generating CRLs. All
// cryptography happens in the external tool; this package builds the
// invocations, checks local preconditions and classifies the tool's output
// into typed errors.
//
// A PKI handle owns one key-store directory and one settings file. Handles
// do not lock the key-store; callers sharing a directory must serialise.
package pki

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/ironpki/internal/util"
)

// PKI orchestrates one key-store.
type PKI struct {
	cfg        Config
	layout     Layout
	varsFile   string
	builder    Builder
	runner     Runner
	classifier Classifier
	logger     *slog.Logger
	observer   Observer
	recorder   Recorder
	diag       DiagnosticFunc
	secretCmd  []string

	bg sync.WaitGroup
}

// New resolves opts, writes the tool settings file and returns a handle.
// Invalid digest, curve or algorithm values fail with ErrInvalidConfig
// before anything is written.
func New(opts ...Option) (*PKI, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := resolveConfig(&o)
	if err != nil {
		return nil, err
	}

	varsFile := cfg.PKIDir + ".vars"
	if o.varsFile != "" {
		if varsFile, err = absPath(o.varsFile); err != nil {
			return nil, err
		}
	}
	easyRSADir, err := absPath(o.easyRSADir)
	if err != nil {
		return nil, err
	}

	p := &PKI{
		cfg:        cfg,
		layout:     Layout{Root: cfg.PKIDir},
		varsFile:   varsFile,
		runner:     o.runner,
		classifier: o.classifier,
		logger:     o.logger,
		observer:   o.observer,
		recorder:   o.recorder,
		diag:       o.diag,
		secretCmd:  o.secretCmd,
		builder: Builder{
			Program:  filepath.Join(easyRSADir, "easyrsa"),
			VarsFile: varsFile,
		},
	}
	if p.runner == nil {
		p.runner = &ExecRunner{Dir: easyRSADir}
	}
	if p.classifier == nil {
		p.classifier = DefaultClassifier()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pki", "pki_dir", cfg.PKIDir)

	if err := writeVars(varsFile, cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the resolved configuration.
func (p *PKI) Config() Config {
	return p.cfg
}

// Layout returns the key-store layout.
func (p *PKI) Layout() Layout {
	return p.layout
}

// VarsFile returns the path of the materialized settings file.
func (p *PKI) VarsFile() string {
	return p.varsFile
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// BuildCARequest holds the parameters for BuildCA. A non-empty Password
// encrypts the CA key.
type BuildCARequest struct {
	CommonName string
	Password   string
}

// IssueRequest holds the parameters for CreateClient and CreateServer.
// Password encrypts the new private key; CAPassword unlocks the CA key.
type IssueRequest struct {
	Name       string
	CommonName string
	Password   string
	CAPassword string
}

// RevokeRequest holds the parameters for Revoke.
type RevokeRequest struct {
	Name       string
	Reason     RevocationReason
	CAPassword string
}

// RenewRequest holds the parameters for Renew.
type RenewRequest struct {
	Name       string
	CommonName string
	Password   string
	CAPassword string
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// InitPKI initialises the key-store. With force the existing store is wiped;
// otherwise compatible state is preserved. On success a shared secret is
// generated in the background; see Wait.
func (p *PKI) InitPKI(ctx context.Context, force bool) (string, error) {
	out, err := p.do(ctx, Request{Op: OpInitPKI, Force: force})
	if err != nil {
		return out, err
	}
	p.generateSecretKey(ctx)
	return out, nil
}

// BuildCA creates the CA. It fails with ErrCAExists if one is present and
// ErrPKINotFound if the key-store is not initialised.
func (p *PKI) BuildCA(ctx context.Context, req BuildCARequest) (string, error) {
	return p.do(ctx, Request{
		Op:         OpBuildCA,
		CommonName: req.CommonName,
		Password:   req.Password,
	})
}

// CreateServer issues a server certificate.
func (p *PKI) CreateServer(ctx context.Context, req IssueRequest) (string, error) {
	return p.issue(ctx, CertServer, req)
}

// CreateClient issues a client certificate.
func (p *PKI) CreateClient(ctx context.Context, req IssueRequest) (string, error) {
	return p.issue(ctx, CertClient, req)
}

func (p *PKI) issue(ctx context.Context, typ CertType, req IssueRequest) (string, error) {
	return p.do(ctx, Request{
		Op:         OpIssue,
		CertType:   typ,
		Name:       req.Name,
		CommonName: req.CommonName,
		Password:   req.Password,
		CAPassword: req.CAPassword,
	})
}

// Revoke revokes the named certificate. The reason must be one of
// RevocationReasons.
func (p *PKI) Revoke(ctx context.Context, req RevokeRequest) (string, error) {
	return p.do(ctx, Request{
		Op:         OpRevoke,
		Name:       req.Name,
		Reason:     req.Reason,
		CAPassword: req.CAPassword,
	})
}

// Renew re-issues the named certificate and then revokes the renewed
// (previous) version. Both steps must succeed.
func (p *PKI) Renew(ctx context.Context, req RenewRequest) (string, error) {
	return p.do(ctx, Request{
		Op:         OpRenew,
		Name:       req.Name,
		CommonName: req.CommonName,
		Password:   req.Password,
		CAPassword: req.CAPassword,
	})
}

// GenCRL generates or refreshes the revocation list.
func (p *PKI) GenCRL(ctx context.Context, caPassword string) (string, error) {
	return p.do(ctx, Request{Op: OpGenCRL, CAPassword: caPassword})
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// StepResult is the outcome of one command in an operation's pipeline.
type StepResult struct {
	Command Command
	Outcome Outcome
	Elapsed time.Duration
	Err     error
}

func (p *PKI) do(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	steps, err := p.execute(ctx, &req)
	p.finish(ctx, req, steps, err, start)

	var out strings.Builder
	for _, s := range steps {
		out.WriteString(s.Outcome.Stdout)
	}
	return out.String(), err
}

func (p *PKI) execute(ctx context.Context, req *Request) ([]StepResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := p.precondition(*req); err != nil {
		return nil, err
	}
	cmds, err := p.builder.Build(*req)
	if err != nil {
		return nil, err
	}
	return p.pipeline(ctx, cmds)
}

// pipeline runs cmds in order; a command only starts if every earlier one
// succeeded.
func (p *PKI) pipeline(ctx context.Context, cmds []Command) ([]StepResult, error) {
	results := make([]StepResult, 0, len(cmds))
	for _, cmd := range cmds {
		res := p.step(ctx, cmd)
		results = append(results, res)
		if res.Err != nil {
			return results, res.Err
		}
	}
	return results, nil
}

func (p *PKI) step(ctx context.Context, cmd Command) StepResult {
	p.logger.DebugContext(ctx, "running command", "command", cmd.Redacted())

	start := time.Now()
	out, err := p.runner.Run(ctx, cmd)
	res := StepResult{Command: cmd, Outcome: out, Elapsed: time.Since(start)}
	if err != nil {
		res.Err = err
		return res
	}
	if p.observer != nil {
		p.observer.ObserveCommand(cmd.Name(), out.ExitCode, res.Elapsed)
	}
	if out.ExitCode != 0 {
		res.Err = &CommandError{
			Command:  cmd.Redacted(),
			ExitCode: out.ExitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Err:      p.classifier.Classify(out),
		}
	}
	return res
}

func (p *PKI) finish(ctx context.Context, req Request, steps []StepResult, err error, start time.Time) {
	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.ObserveOperation(req.Op, err, elapsed)
	}

	attrs := []any{"operation", string(req.Op), "duration", elapsed}
	if req.Name != "" {
		attrs = append(attrs, "name", req.Name)
	}
	if err != nil {
		p.logger.InfoContext(ctx, "operation failed", append(attrs, "kind", ErrorKind(err), "error", err)...)
	} else {
		p.logger.InfoContext(ctx, "operation completed", attrs...)
	}

	if p.recorder == nil {
		return
	}
	rec := Record{
		Operation: req.Op,
		Name:      req.Name,
		Err:       err,
		Started:   start,
		Duration:  elapsed,
	}
	for _, s := range steps {
		rec.Commands = append(rec.Commands, s.Command.Redacted())
	}
	if rerr := p.recorder.Record(ctx, rec); rerr != nil {
		p.logger.WarnContext(ctx, "failed to record operation", "operation", string(req.Op), "error", rerr)
	}
}

// validateRequest checks enumerated values and normalises the target name.
func validateRequest(req *Request) error {
	switch req.Op {
	case OpIssue, OpRevoke, OpRenew:
		name, err := cleanName(req.Name)
		if err != nil {
			return err
		}
		req.Name = name
	}
	if req.Op == OpRevoke && !req.Reason.Valid() {
		return fmt.Errorf("%w: revocation reason %q is not one of %v", ErrInvalidConfig, req.Reason, RevocationReasons)
	}
	return nil
}

// cleanName NFC-normalises a certificate name. Names become file names in
// the key-store, so separators and dot names are rejected.
func cleanName(name string) (string, error) {
	n := util.Normalize(name)
	if n == "" || n == "." || n == ".." || strings.ContainsAny(n, "/\\\x00") {
		return "", fmt.Errorf("%w: invalid certificate name %q", ErrInvalidConfig, name)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Key-store inspection
// ---------------------------------------------------------------------------

// Status describes what the key-store currently contains.
type Status struct {
	PKIDir       string   `json:"pki_dir"`
	Initialized  bool     `json:"initialized"`
	CA           bool     `json:"ca"`
	CAEncrypted  bool     `json:"ca_encrypted"`
	Issued       []string `json:"issued"`
	CRL          bool     `json:"crl"`
	SharedSecret bool     `json:"shared_secret"`
}

// Status inspects the key-store on disk.
func (p *PKI) Status() (*Status, error) {
	st := &Status{PKIDir: p.cfg.PKIDir, Issued: []string{}}

	if _, err := os.Stat(filepath.Join(p.cfg.PKIDir, "private")); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return nil, fmt.Errorf("inspecting key-store: %w", err)
	}
	st.Initialized = true

	switch err := checkCAKey(p.layout.CAKey()); {
	case err == nil:
		st.CA = true
	case errors.Is(err, ErrPrivateKeyEncrypted):
		st.CA = true
		st.CAEncrypted = true
	case !errors.Is(err, ErrCANotFound):
		return nil, err
	}

	entries, err := os.ReadDir(p.layout.IssuedDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("listing issued certificates: %w", err)
	}
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".crt"); ok && !e.IsDir() {
			st.Issued = append(st.Issued, name)
		}
	}
	slices.Sort(st.Issued)

	st.CRL = fileExists(p.layout.CRL())
	st.SharedSecret = fileExists(p.layout.SharedSecret())
	return st, nil
}

// CACertificate returns the PEM-encoded CA certificate.
func (p *PKI) CACertificate() ([]byte, error) {
	data, err := os.ReadFile(p.layout.CACert())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !fileExists(p.cfg.PKIDir) {
				return nil, ErrPKINotFound
			}
			return nil, ErrCANotFound
		}
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	return data, nil
}

// CRL returns the most recently generated PEM-encoded CRL.
func (p *PKI) CRL() ([]byte, error) {
	data, err := os.ReadFile(p.layout.CRL())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoCRL
		}
		return nil, fmt.Errorf("reading CRL: %w", err)
	}
	return data, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
