package pki

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// Digest is a message digest accepted by the tool.
type Digest string

const (
	DigestMD5    Digest = "md5"
	DigestSHA1   Digest = "sha1"
	DigestSHA224 Digest = "sha224"
	DigestSHA256 Digest = "sha256"
	DigestSHA384 Digest = "sha384"
	DigestSHA512 Digest = "sha512"
)

// Digests lists every accepted digest.
var Digests = []Digest{DigestMD5, DigestSHA1, DigestSHA224, DigestSHA256, DigestSHA384, DigestSHA512}

// Valid reports whether d is one of Digests.
func (d Digest) Valid() bool {
	return slices.Contains(Digests, d)
}

// Algorithm is the key algorithm used for new keys.
type Algorithm string

const (
	AlgorithmRSA Algorithm = "rsa"
	AlgorithmEC  Algorithm = "ec"
)

// Valid reports whether a is rsa or ec.
func (a Algorithm) Valid() bool {
	return a == AlgorithmRSA || a == AlgorithmEC
}

// Curves is the set of named curves accepted for EC keys (OpenSSL names).
var Curves = []string{
	"secp112r1", "secp112r2", "secp128r1", "secp128r2",
	"secp160k1", "secp160r1", "secp160r2",
	"secp192k1", "secp224k1", "secp224r1", "secp256k1",
	"secp384r1", "secp521r1",
	"prime192v1", "prime192v2", "prime192v3",
	"prime239v1", "prime239v2", "prime239v3", "prime256v1",
	"sect113r1", "sect113r2", "sect131r1", "sect131r2",
	"sect163k1", "sect163r1", "sect163r2", "sect193r1", "sect193r2",
	"sect233k1", "sect233r1", "sect239k1", "sect283k1", "sect283r1",
	"sect409k1", "sect409r1", "sect571k1", "sect571r1",
	"c2pnb163v1", "c2pnb163v2", "c2pnb163v3", "c2pnb176v1",
	"c2tnb191v1", "c2tnb191v2", "c2tnb191v3", "c2pnb208w1",
	"c2tnb239v1", "c2tnb239v2", "c2tnb239v3", "c2pnb272w1",
	"c2pnb304w1", "c2tnb359v1", "c2pnb368w1", "c2tnb431r1",
	"wap-wsg-idm-ecid-wtls1", "wap-wsg-idm-ecid-wtls3", "wap-wsg-idm-ecid-wtls4",
	"wap-wsg-idm-ecid-wtls5", "wap-wsg-idm-ecid-wtls6", "wap-wsg-idm-ecid-wtls7",
	"wap-wsg-idm-ecid-wtls8", "wap-wsg-idm-ecid-wtls9", "wap-wsg-idm-ecid-wtls10",
	"wap-wsg-idm-ecid-wtls11", "wap-wsg-idm-ecid-wtls12",
	"Oakley-EC2N-3", "Oakley-EC2N-4",
	"brainpoolP160r1", "brainpoolP160t1", "brainpoolP192r1", "brainpoolP192t1",
	"brainpoolP224r1", "brainpoolP224t1", "brainpoolP256r1", "brainpoolP256t1",
	"brainpoolP320r1", "brainpoolP320t1", "brainpoolP384r1", "brainpoolP384t1",
	"brainpoolP512r1", "brainpoolP512t1",
	"SM2",
}

// Defaults applied by New when the corresponding option is not given.
const (
	DefaultBaseDir   = "easy-rsa"
	DefaultEasyRSA   = "/usr/share/easy-rsa"
	DefaultCADays    = 3650
	DefaultCertDays  = 825
	DefaultDigest    = DigestSHA256
	DefaultAlgorithm = AlgorithmRSA
	DefaultKeySize   = 2048
	DefaultCurve     = "secp384r1"
)

// Config is the resolved, immutable configuration of a PKI handle.
type Config struct {
	PKIDir    string
	CADays    int
	CertDays  int
	Digest    Digest
	Algorithm Algorithm
	KeySize   int
	Curve     string
}

// Option configures a PKI handle.
type Option func(*options)

type options struct {
	pkiDir     string
	varsFile   string
	easyRSADir string
	caDays     int
	certDays   int
	digest     Digest
	algorithm  Algorithm
	keySize    int
	curve      string

	runner     Runner
	classifier Classifier
	logger     *slog.Logger
	observer   Observer
	recorder   Recorder
	diag       DiagnosticFunc
	secretCmd  []string
}

// WithPKIDir sets the key-store directory. Relative paths are resolved
// against the working directory.
// Default: "easy-rsa/pki".
func WithPKIDir(dir string) Option {
	return func(o *options) {
		o.pkiDir = dir
	}
}

// WithVarsFile sets where the tool settings file is written.
// Default: "<pki-dir>.vars".
func WithVarsFile(path string) Option {
	return func(o *options) {
		o.varsFile = path
	}
}

// WithEasyRSADir sets the directory containing the easyrsa entry point.
// Commands run with this directory as their working directory.
func WithEasyRSADir(dir string) Option {
	return func(o *options) {
		o.easyRSADir = dir
	}
}

// WithCADays sets the CA validity period in days.
func WithCADays(days int) Option {
	return func(o *options) {
		o.caDays = days
	}
}

// WithCertDays sets the issued certificate validity period in days.
func WithCertDays(days int) Option {
	return func(o *options) {
		o.certDays = days
	}
}

// WithDigest sets the signature digest.
func WithDigest(d Digest) Option {
	return func(o *options) {
		o.digest = d
	}
}

// WithAlgorithm sets the key algorithm.
func WithAlgorithm(a Algorithm) Option {
	return func(o *options) {
		o.algorithm = a
	}
}

// WithKeySize sets the RSA key size in bits.
func WithKeySize(bits int) Option {
	return func(o *options) {
		o.keySize = bits
	}
}

// WithCurve sets the EC named curve.
func WithCurve(curve string) Option {
	return func(o *options) {
		o.curve = curve
	}
}

// WithRunner replaces the subprocess runner. Default: an ExecRunner rooted
// at the easyrsa directory.
func WithRunner(r Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithClassifier replaces the output classification rules.
func WithClassifier(c Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers an observer for commands and operations.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithRecorder registers a recorder that receives one Record per operation.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithDiagnosticFunc sets the callback receiving failures of detached
// background tasks.
func WithDiagnosticFunc(fn DiagnosticFunc) Option {
	return func(o *options) {
		o.diag = fn
	}
}

// WithSecretKeyCommand sets the program and leading arguments used to
// generate the shared secret after init. The output path is appended.
// Default: openvpn --genkey secret <pki>/ta.key. An empty argv disables it.
func WithSecretKeyCommand(argv ...string) Option {
	return func(o *options) {
		if argv == nil {
			argv = []string{}
		}
		o.secretCmd = argv
	}
}

func defaultOptions() options {
	return options{
		pkiDir:     filepath.Join(DefaultBaseDir, "pki"),
		easyRSADir: DefaultEasyRSA,
		caDays:     DefaultCADays,
		certDays:   DefaultCertDays,
		digest:     DefaultDigest,
		algorithm:  DefaultAlgorithm,
		keySize:    DefaultKeySize,
		curve:      DefaultCurve,
		secretCmd:  []string{"openvpn", "--genkey", "secret"},
	}
}

// resolveConfig validates o and produces the immutable Config. It performs
// no I/O beyond reading the working directory.
func resolveConfig(o *options) (Config, error) {
	if !o.digest.Valid() {
		return Config{}, fmt.Errorf("%w: digest %q is not one of %v", ErrInvalidConfig, o.digest, Digests)
	}
	if !slices.Contains(Curves, o.curve) {
		return Config{}, fmt.Errorf("%w: unknown curve %q", ErrInvalidConfig, o.curve)
	}
	if !o.algorithm.Valid() {
		return Config{}, fmt.Errorf("%w: algorithm %q must be rsa or ec", ErrInvalidConfig, o.algorithm)
	}
	if o.caDays <= 0 || o.certDays <= 0 {
		return Config{}, fmt.Errorf("%w: validity periods must be positive", ErrInvalidConfig)
	}
	if o.keySize <= 0 {
		return Config{}, fmt.Errorf("%w: key size must be positive", ErrInvalidConfig)
	}
	if o.pkiDir == "" {
		return Config{}, fmt.Errorf("%w: empty PKI directory", ErrInvalidConfig)
	}

	pkiDir, err := absPath(o.pkiDir)
	if err != nil {
		return Config{}, err
	}
	return Config{
		PKIDir:    pkiDir,
		CADays:    o.caDays,
		CertDays:  o.certDays,
		Digest:    o.digest,
		Algorithm: o.algorithm,
		KeySize:   o.keySize,
		Curve:     o.curve,
	}, nil
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return filepath.Join(wd, p), nil
}
