package shc

import (
	"context"
	"time"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/fhirbundle"
	"github.com/gofhir/smarthealth/jose"
	"github.com/gofhir/smarthealth/qr"
	"github.com/gofhir/smarthealth/vc"
	"github.com/gofhir/smarthealth/worker"
)

// IssuerOption configures an Issuer.
type IssuerOption func(*IssuerOptions)

// IssuerOptions holds all configuration for an Issuer.
type IssuerOptions struct {
	// OptimizeForQR rewrites bundles for QR density before signing.
	OptimizeForQR bool

	// StrictReferences fails issuance on dangling bundle references.
	StrictReferences bool

	// EnableCompression DEFLATE-compresses the JWS payload.
	EnableCompression bool

	// FHIRVersion overrides the default "4.0.1".
	FHIRVersion string

	// AdditionalTypes are extra vc.type URIs after the health-card URI.
	AdditionalTypes []string

	// Expiration, when non-zero, sets exp = nbf + Expiration.
	Expiration time.Duration

	// QR configures QR encoding for IssueQR and Card.QRCodes callers.
	QR qr.EncodeOptions

	// WorkerCount bounds IssueBatch parallelism; 0 means NumCPU.
	WorkerCount int

	// Metrics receives issuance counters when set.
	Metrics *sh.Metrics
}

// defaultIssuerOptions returns the default configuration.
func defaultIssuerOptions() *IssuerOptions {
	return &IssuerOptions{
		OptimizeForQR:     true,
		StrictReferences:  true,
		EnableCompression: true,
		QR:                qr.EncodeOptions{EnableChunking: true, Level: qr.LevelLow},
	}
}

// WithQROptimization toggles the bundle rewrite before signing.
func WithQROptimization(enable bool) IssuerOption {
	return func(o *IssuerOptions) { o.OptimizeForQR = enable }
}

// WithStrictReferences toggles reference resolution failures.
func WithStrictReferences(enable bool) IssuerOption {
	return func(o *IssuerOptions) { o.StrictReferences = enable }
}

// WithCompression toggles DEFLATE compression of signed payloads.
func WithCompression(enable bool) IssuerOption {
	return func(o *IssuerOptions) { o.EnableCompression = enable }
}

// WithFHIRVersion sets the credential FHIR version.
func WithFHIRVersion(version string) IssuerOption {
	return func(o *IssuerOptions) { o.FHIRVersion = version }
}

// WithAdditionalTypes appends vc.type URIs after the health-card URI.
func WithAdditionalTypes(types ...string) IssuerOption {
	return func(o *IssuerOptions) { o.AdditionalTypes = types }
}

// WithExpiration makes issued cards expire after d.
func WithExpiration(d time.Duration) IssuerOption {
	return func(o *IssuerOptions) { o.Expiration = d }
}

// WithQREncoding sets the QR encoding options used by IssueQR.
func WithQREncoding(opts qr.EncodeOptions) IssuerOption {
	return func(o *IssuerOptions) { o.QR = opts }
}

// WithWorkerCount bounds IssueBatch parallelism.
func WithWorkerCount(count int) IssuerOption {
	return func(o *IssuerOptions) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithMetrics wires issuance counters.
func WithMetrics(m *sh.Metrics) IssuerOption {
	return func(o *IssuerOptions) { o.Metrics = m }
}

// Issuer signs FHIR Bundles into SMART Health Cards.
type Issuer struct {
	iss    string
	signer *jose.Signer
	opts   *IssuerOptions
	now    func() time.Time
}

// NewIssuer creates an Issuer for the given iss URL and ES256 key pair.
// Key material may be PEM, JWK JSON, a jwk.Key or raw *ecdsa keys.
func NewIssuer(iss string, privateKey, publicKey any, opts ...IssuerOption) (*Issuer, error) {
	if iss == "" {
		return nil, sh.NewError(sh.KindVCValidation, "issuer URL must not be empty")
	}

	signer, err := jose.NewSigner(privateKey, publicKey)
	if err != nil {
		return nil, err
	}

	o := defaultIssuerOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Issuer{iss: iss, signer: signer, opts: o, now: time.Now}, nil
}

// KeyID returns the kid stamped into every card this issuer signs.
func (i *Issuer) KeyID() string {
	return i.signer.KeyID()
}

// Issue signs one bundle into a card.
func (i *Issuer) Issue(bundle map[string]any) (*Card, error) {
	start := i.now()
	card, err := i.issue(bundle)
	if i.opts.Metrics != nil {
		i.opts.Metrics.RecordIssue(i.now().Sub(start), err == nil)
	}
	return card, err
}

func (i *Issuer) issue(bundle map[string]any) (*Card, error) {
	if i.opts.OptimizeForQR {
		optimized, err := fhirbundle.Optimize(bundle, fhirbundle.Options{
			StrictReferences: i.opts.StrictReferences,
		})
		if err != nil {
			return nil, err
		}
		bundle = optimized
	} else if err := fhirbundle.Validate(bundle); err != nil {
		return nil, err
	}

	credential, err := vc.Create(bundle, vc.CreateOptions{
		FHIRVersion:     i.opts.FHIRVersion,
		AdditionalTypes: i.opts.AdditionalTypes,
	})
	if err != nil {
		return nil, err
	}

	now := i.now().Unix()
	payload := &vc.Payload{
		Issuer:    i.iss,
		NotBefore: now,
		VC:        *credential,
	}
	if i.opts.Expiration > 0 {
		payload.Expiration = now + int64(i.opts.Expiration.Seconds())
	}

	token, err := i.signer.Sign(payload, jose.WithCompression(i.opts.EnableCompression))
	if err != nil {
		return nil, err
	}

	return newCard(token, payload), nil
}

// IssueFile signs bundles and wraps the cards into one file.
func (i *Issuer) IssueFile(bundles ...map[string]any) (*File, error) {
	if len(bundles) == 0 {
		return nil, sh.NewError(sh.KindFileFormat, "File contains empty verifiableCredential array")
	}

	creds := make([]string, 0, len(bundles))
	for _, bundle := range bundles {
		card, err := i.Issue(bundle)
		if err != nil {
			return nil, err
		}
		creds = append(creds, card.JWS())
	}
	return NewFile(creds...), nil
}

// IssueQR signs one bundle and encodes it as QR content strings.
func (i *Issuer) IssueQR(bundle map[string]any) ([]string, error) {
	card, err := i.Issue(bundle)
	if err != nil {
		return nil, err
	}
	if i.opts.Metrics != nil {
		i.opts.Metrics.RecordQREncode()
	}
	return card.QRCodes(i.opts.QR)
}

// BatchItem is one result of IssueBatch: either a card or the error for
// that bundle.
type BatchItem struct {
	Card *Card
	Err  error
}

// IssueBatch signs many bundles in parallel, preserving input order.
func (i *Issuer) IssueBatch(ctx context.Context, bundles []map[string]any) []BatchItem {
	results := worker.RunBatch(ctx, func(bundle map[string]any) (any, error) {
		return i.Issue(bundle)
	}, bundles, i.opts.WorkerCount)

	out := make([]BatchItem, len(results))
	for idx, r := range results {
		if r.Err != nil {
			out[idx] = BatchItem{Err: r.Err}
			continue
		}
		out[idx] = BatchItem{Card: r.Value.(*Card)}
	}
	return out
}
