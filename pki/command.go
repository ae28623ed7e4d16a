package pki

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Operation is a logical PKI action.
type Operation string

const (
	OpInitPKI Operation = "init-pki"
	OpBuildCA Operation = "build-ca"
	OpIssue   Operation = "issue"
	OpRevoke  Operation = "revoke"
	OpRenew   Operation = "renew"
	OpGenCRL  Operation = "gen-crl"
)

// needsCA reports whether op unlocks the CA private key.
func (op Operation) needsCA() bool {
	switch op {
	case OpIssue, OpRevoke, OpRenew, OpGenCRL:
		return true
	}
	return false
}

// CertType selects the signing profile of an issued certificate.
type CertType string

const (
	CertClient CertType = "client"
	CertServer CertType = "server"
)

// RevocationReason is a CRL reason code name.
type RevocationReason string

const (
	ReasonUnspecified          RevocationReason = "unspecified"
	ReasonKeyCompromise        RevocationReason = "keyCompromise"
	ReasonCACompromise         RevocationReason = "CACompromise"
	ReasonAffiliationChanged   RevocationReason = "affiliationChanged"
	ReasonSuperseded           RevocationReason = "superseded"
	ReasonCessationOfOperation RevocationReason = "cessationOfOperation"
	ReasonCertificateHold      RevocationReason = "certificateHold"
)

// RevocationReasons lists every accepted reason.
var RevocationReasons = []RevocationReason{
	ReasonUnspecified,
	ReasonKeyCompromise,
	ReasonCACompromise,
	ReasonAffiliationChanged,
	ReasonSuperseded,
	ReasonCessationOfOperation,
	ReasonCertificateHold,
}

// Valid reports whether r is one of RevocationReasons.
func (r RevocationReason) Valid() bool {
	for _, v := range RevocationReasons {
		if r == v {
			return true
		}
	}
	return false
}

// Request describes one logical action.
type Request struct {
	Op         Operation
	Force      bool
	Name       string
	CertType   CertType
	CommonName string
	Password   string
	CAPassword string
	Reason     RevocationReason
}

// Arg is one command-line argument. A flag with a value renders as
// Flag=Value; a bare flag has no Value; a positional arg has no Flag.
type Arg struct {
	Flag   string
	Value  string
	Quote  bool // caller-supplied free text
	Secret bool // redacted in logs and journal
}

func (a Arg) raw() string {
	switch {
	case a.Flag == "":
		return a.Value
	case a.Value == "" && !a.Quote:
		return a.Flag
	default:
		return a.Flag + "=" + a.Value
	}
}

func (a Arg) render(redact bool) string {
	v := a.Value
	if redact && a.Secret {
		v = "***"
	}
	if a.Quote {
		v = Quote(v)
	}
	switch {
	case a.Flag == "":
		return v
	case a.Value == "" && !a.Quote:
		return a.Flag
	default:
		return a.Flag + "=" + v
	}
}

// Command is one invocation of an external program.
type Command struct {
	Program    string
	Options    []Arg
	Subcommand string
	Params     []Arg
}

// Args returns the raw argument vector (without the program). Values are
// passed literally; no shell is involved.
func (c Command) Args() []string {
	args := make([]string, 0, len(c.Options)+len(c.Params)+1)
	for _, a := range c.Options {
		args = append(args, a.raw())
	}
	if c.Subcommand != "" {
		args = append(args, c.Subcommand)
	}
	for _, a := range c.Params {
		args = append(args, a.raw())
	}
	return args
}

// Name returns the label used for metrics: the subcommand, or the program
// base name for commands without one.
func (c Command) Name() string {
	if c.Subcommand != "" {
		return c.Subcommand
	}
	return filepath.Base(c.Program)
}

// String renders the command as an escaped shell line.
func (c Command) String() string {
	return c.line(false)
}

// Redacted is String with secret values replaced.
func (c Command) Redacted() string {
	return c.line(true)
}

func (c Command) line(redact bool) string {
	parts := make([]string, 0, len(c.Options)+len(c.Params)+2)
	if c.Program != "" {
		parts = append(parts, c.Program)
	}
	for _, a := range c.Options {
		parts = append(parts, a.render(redact))
	}
	if c.Subcommand != "" {
		parts = append(parts, c.Subcommand)
	}
	for _, a := range c.Params {
		parts = append(parts, a.render(redact))
	}
	return strings.Join(parts, " ")
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"`", "\\`",
	`$`, `\$`,
)

// Quote wraps s in double quotes and backslash-escapes double quotes,
// single quotes, backticks, dollar signs and backslashes.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

// Builder turns requests into easyrsa commands.
type Builder struct {
	Program  string // easyrsa entry point
	VarsFile string
}

// Build returns the commands for req in execution order.
func (b Builder) Build(req Request) ([]Command, error) {
	switch req.Op {
	case OpInitPKI:
		return []Command{b.initPKI(req.Force)}, nil
	case OpBuildCA:
		return []Command{b.buildCA(req)}, nil
	case OpIssue:
		if req.CertType != CertClient && req.CertType != CertServer {
			return nil, fmt.Errorf("%w: certificate type %q", ErrInvalidConfig, req.CertType)
		}
		return b.issue(req), nil
	case OpRevoke:
		if !req.Reason.Valid() {
			return nil, fmt.Errorf("%w: revocation reason %q", ErrInvalidConfig, req.Reason)
		}
		return []Command{b.revoke(req)}, nil
	case OpRenew:
		return b.renew(req), nil
	case OpGenCRL:
		return []Command{b.genCRL(req)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidConfig, req.Op)
	}
}

func (b Builder) command(sub string, opts ...Arg) Command {
	global := []Arg{
		{Flag: "--batch"},
		{Flag: "--vars", Value: b.VarsFile, Quote: true},
	}
	return Command{
		Program:    b.Program,
		Options:    append(global, opts...),
		Subcommand: sub,
	}
}

func commonNameArg(cn string) []Arg {
	if cn == "" {
		return nil
	}
	return []Arg{{Flag: "--req-cn", Value: cn, Quote: true}}
}

func passArg(flag, password string) []Arg {
	if password == "" {
		return nil
	}
	return []Arg{{Flag: flag, Value: "pass:" + password, Quote: true, Secret: true}}
}

func nameArg(name string) Arg {
	return Arg{Value: name, Quote: true}
}

var nopass = Arg{Value: "nopass"}

func (b Builder) initPKI(force bool) Command {
	mode := "soft"
	if force {
		mode = "hard"
	}
	c := b.command("init-pki")
	c.Params = []Arg{{Value: mode}}
	return c
}

func (b Builder) buildCA(req Request) Command {
	var opts []Arg
	opts = append(opts, commonNameArg(req.CommonName)...)
	opts = append(opts, passArg("--passin", req.Password)...)
	opts = append(opts, passArg("--passout", req.Password)...)
	c := b.command("build-ca", opts...)
	if req.Password == "" {
		c.Params = []Arg{nopass}
	}
	return c
}

func (b Builder) issue(req Request) []Command {
	var reqOpts []Arg
	reqOpts = append(reqOpts, commonNameArg(req.CommonName)...)
	reqOpts = append(reqOpts, passArg("--passout", req.Password)...)
	genReq := b.command("gen-req", reqOpts...)
	genReq.Params = []Arg{nameArg(req.Name)}
	if req.Password == "" {
		genReq.Params = append(genReq.Params, nopass)
	}

	signReq := b.command("sign-req", passArg("--passin", req.CAPassword)...)
	signReq.Params = []Arg{{Value: string(req.CertType)}, nameArg(req.Name)}

	return []Command{genReq, signReq}
}

func (b Builder) revoke(req Request) Command {
	c := b.command("revoke", passArg("--passin", req.CAPassword)...)
	c.Params = []Arg{nameArg(req.Name), {Value: string(req.Reason)}}
	return c
}

func (b Builder) renew(req Request) []Command {
	var pass []Arg
	pass = append(pass, passArg("--passin", req.CAPassword)...)
	pass = append(pass, passArg("--passout", req.Password)...)

	renew := b.command("renew", append(commonNameArg(req.CommonName), pass...)...)
	renew.Params = []Arg{nameArg(req.Name)}
	if req.Password == "" {
		renew.Params = append(renew.Params, nopass)
	}

	revoke := b.command("revoke-renewed", pass...)
	revoke.Params = []Arg{nameArg(req.Name)}

	return []Command{renew, revoke}
}

func (b Builder) genCRL(req Request) Command {
	return b.command("gen-crl", passArg("--passin", req.CAPassword)...)
}
