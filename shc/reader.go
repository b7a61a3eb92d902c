package shc

import (
	"context"

	"github.com/lestrrat-go/jwx/v3/jwk"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/jose"
	"github.com/gofhir/smarthealth/qr"
	"github.com/gofhir/smarthealth/vc"
)

// KeyResolver locates a verification key for an issuer and kid. The
// directory package provides an HTTP-backed implementation.
type KeyResolver interface {
	ResolveKey(ctx context.Context, iss, kid string) (jwk.Key, error)
}

// ReaderOption configures a Reader.
type ReaderOption func(*ReaderOptions)

// ReaderOptions holds all configuration for a Reader.
type ReaderOptions struct {
	// PublicKey pins verification to one key. Takes precedence over
	// Resolver.
	PublicKey any

	// Resolver locates keys by iss + kid when no key is pinned.
	Resolver KeyResolver

	// VerifyExpiration rejects cards whose exp has passed.
	VerifyExpiration bool

	// Metrics receives verification counters when set.
	Metrics *sh.Metrics
}

// WithPublicKey pins the verification key.
func WithPublicKey(key any) ReaderOption {
	return func(o *ReaderOptions) { o.PublicKey = key }
}

// WithKeyResolver wires directory-based key resolution.
func WithKeyResolver(r KeyResolver) ReaderOption {
	return func(o *ReaderOptions) { o.Resolver = r }
}

// WithExpirationCheck toggles the exp claim check. Enabled by default.
func WithExpirationCheck(enable bool) ReaderOption {
	return func(o *ReaderOptions) { o.VerifyExpiration = enable }
}

// WithReaderMetrics wires verification counters.
func WithReaderMetrics(m *sh.Metrics) ReaderOption {
	return func(o *ReaderOptions) { o.Metrics = m }
}

// Reader verifies SMART Health Cards from any of their carrier forms.
type Reader struct {
	opts ReaderOptions
}

// NewReader creates a Reader. Either a pinned public key or a key
// resolver must be configured before FromJWS can verify anything.
func NewReader(opts ...ReaderOption) *Reader {
	o := ReaderOptions{VerifyExpiration: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{opts: o}
}

// FromJWS verifies one compact JWS and returns the card.
func (r *Reader) FromJWS(ctx context.Context, token string) (*Card, error) {
	card, err := r.verify(ctx, token)
	if r.opts.Metrics != nil {
		if err != nil {
			if sh.IsKind(err, sh.KindExpiration) {
				r.opts.Metrics.RecordExpired()
			}
			r.opts.Metrics.RecordVerify(0, false)
		} else {
			r.opts.Metrics.RecordVerify(0, true)
		}
	}
	return card, err
}

func (r *Reader) verify(ctx context.Context, token string) (*Card, error) {
	key, err := r.resolveKey(ctx, token)
	if err != nil {
		return nil, err
	}

	payload, err := jose.Verify(token, key,
		jose.WithExpirationCheck(r.opts.VerifyExpiration))
	if err != nil {
		return nil, err
	}

	if err := vc.Validate(payload); err != nil {
		return nil, err
	}

	return newCard(token, payload), nil
}

// resolveKey picks the pinned key or asks the resolver using the
// token's unverified iss and kid.
func (r *Reader) resolveKey(ctx context.Context, token string) (any, error) {
	if r.opts.PublicKey != nil {
		return r.opts.PublicKey, nil
	}
	if r.opts.Resolver == nil {
		return nil, sh.NewError(sh.KindSignatureVerification,
			"reader has neither a pinned key nor a key resolver")
	}

	kid, err := jose.PeekKeyID(token)
	if err != nil {
		return nil, err
	}
	peeked, err := jose.PeekPayload(token)
	if err != nil {
		return nil, err
	}

	key, err := r.opts.Resolver.ResolveKey(ctx, peeked.Issuer, kid)
	if err != nil {
		return nil, sh.WrapError(sh.KindSignatureVerification,
			"no verification key for issuer "+peeked.Issuer, err)
	}
	return key, nil
}

// FromFileJSON parses a SMART Health Card file and verifies every
// credential it contains.
func (r *Reader) FromFileJSON(ctx context.Context, data []byte) ([]*Card, error) {
	file, err := ParseFile(data)
	if err != nil {
		return nil, err
	}

	cards := make([]*Card, 0, len(file.VerifiableCredential))
	for _, token := range file.VerifiableCredential {
		card, err := r.FromJWS(ctx, token)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// FromQR reassembles scanned QR contents and verifies the card.
func (r *Reader) FromQR(ctx context.Context, contents []string) (*Card, error) {
	token, err := qr.Decode(contents)
	if err != nil {
		return nil, err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordQRDecode()
	}
	return r.FromJWS(ctx, token)
}
