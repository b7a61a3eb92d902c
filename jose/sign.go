package jose

import (
	"encoding/json"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/vc"
)

// Signer signs credential payloads with a fixed ES256 key pair. The kid
// is precomputed from the public key at construction.
type Signer struct {
	priv jwk.Key
	pub  jwk.Key
	kid  string
}

// NewSigner normalizes the key pair and precomputes the kid. Both keys
// must be on P-256.
func NewSigner(privateKey, publicKey any) (*Signer, error) {
	priv, err := ImportPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ImportPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	kid, err := Thumbprint(pub)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, pub: pub, kid: kid}, nil
}

// KeyID returns the kid the signer stamps into every JWS.
func (s *Signer) KeyID() string {
	return s.kid
}

// PublicKey returns the normalized verification key.
func (s *Signer) PublicKey() jwk.Key {
	return s.pub
}

// SignOption configures a Sign call.
type SignOption func(*signConfig)

type signConfig struct {
	compress bool
}

// WithCompression toggles raw-DEFLATE compression of the payload.
// Enabled by default.
func WithCompression(enable bool) SignOption {
	return func(c *signConfig) {
		c.compress = enable
	}
}

// Sign validates the payload and emits the compact JWS. The protected
// header carries alg=ES256, the thumbprint kid, and zip=DEF when the
// payload was compressed.
func (s *Signer) Sign(payload *vc.Payload, opts ...SignOption) (string, error) {
	cfg := signConfig{compress: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := vc.Validate(payload); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", sh.WrapError(sh.KindPayloadValidation, "payload is not serializable", err)
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, s.kid); err != nil {
		return "", sh.WrapError(sh.KindPayloadValidation, "cannot set kid header", err)
	}

	if cfg.compress {
		body, err = Deflate(body)
		if err != nil {
			return "", err
		}
		if err := hdrs.Set("zip", "DEF"); err != nil {
			return "", sh.WrapError(sh.KindPayloadValidation, "cannot set zip header", err)
		}
	}

	signed, err := jws.Sign(body, jws.WithKey(jwa.ES256(), s.priv, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", sh.WrapError(sh.KindPayloadValidation, "signing failed", err)
	}

	return string(signed), nil
}
