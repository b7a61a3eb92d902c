package jose

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/vc"
)

// VerifyOption configures a Verify call.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	verifyExpiration bool
	now              func() time.Time
}

// WithExpirationCheck toggles the exp claim check. Enabled by default.
func WithExpirationCheck(enable bool) VerifyOption {
	return func(c *verifyConfig) {
		c.verifyExpiration = enable
	}
}

// withClock overrides the clock, for tests.
func withClock(now func() time.Time) VerifyOption {
	return func(c *verifyConfig) {
		c.now = now
	}
}

// Verify checks an ES256 compact JWS against a public key and returns
// the decoded credential payload. The payload is inflated first when the
// protected header carries zip=DEF.
func Verify(token string, publicKey any, opts ...VerifyOption) (*vc.Payload, error) {
	cfg := verifyConfig{verifyExpiration: true, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	if token == "" {
		return nil, sh.NewError(sh.KindPayloadValidation, "JWS must be a non-empty string")
	}
	if strings.Count(token, ".") != 2 {
		return nil, sh.NewError(sh.KindPayloadValidation, "JWS must have three segments")
	}

	msg, err := jws.ParseString(token)
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "malformed JWS", err)
	}

	key, err := ImportPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	body, err := jws.Verify([]byte(token), jws.WithKey(jwa.ES256(), key))
	if err != nil {
		return nil, sh.WrapError(sh.KindSignatureVerification, "signature verification failed", err)
	}

	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return nil, sh.NewError(sh.KindPayloadValidation, "JWS carries no signature")
	}
	hdrs := sigs[0].ProtectedHeaders()
	var zip string
	if err := hdrs.Get("zip", &zip); err == nil && zip == "DEF" {
		body, err = Inflate(body)
		if err != nil {
			return nil, err
		}
	}

	var payload vc.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "payload is not valid JSON", err)
	}

	if cfg.verifyExpiration && payload.Expiration != 0 {
		if payload.Expiration <= cfg.now().Unix() {
			return nil, sh.Errorf(sh.KindExpiration, "credential expired at %d", payload.Expiration)
		}
	}

	return &payload, nil
}

// PeekKeyID returns the kid from the protected header without verifying
// the signature. Readers use it to locate the issuer's key.
func PeekKeyID(token string) (string, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", sh.WrapError(sh.KindPayloadValidation, "malformed JWS", err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", sh.NewError(sh.KindPayloadValidation, "JWS carries no signature")
	}
	kid, ok := sigs[0].ProtectedHeaders().KeyID()
	if !ok {
		return "", sh.NewError(sh.KindPayloadValidation, "JWS protected header carries no kid")
	}
	return kid, nil
}

// PeekPayload decodes the payload WITHOUT verifying the signature.
// Readers use it to discover the iss claim before key resolution; the
// result must never be trusted until Verify succeeds.
func PeekPayload(token string) (*vc.Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, sh.NewError(sh.KindPayloadValidation, "JWS must have three segments")
	}

	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "payload segment is not base64url", err)
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "header segment is not base64url", err)
	}
	var hdr struct {
		Zip string `json:"zip"`
	}
	if err := json.Unmarshal(header, &hdr); err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "protected header is not valid JSON", err)
	}
	if hdr.Zip == "DEF" {
		body, err = Inflate(body)
		if err != nil {
			return nil, err
		}
	}

	var payload vc.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "payload is not valid JSON", err)
	}
	return &payload, nil
}
