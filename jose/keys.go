package jose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"

	sh "github.com/gofhir/smarthealth"
)

// ImportPrivateKey normalizes private key material to a jwk.Key.
// Accepted representations: PEM (PKCS#8), JWK JSON (string or []byte),
// a jwk.Key handle, or a *ecdsa.PrivateKey. The curve must be P-256.
func ImportPrivateKey(material any) (jwk.Key, error) {
	key, err := importKey(material)
	if err != nil {
		return nil, err
	}
	if err := requireP256(key, true); err != nil {
		return nil, err
	}
	return key, nil
}

// ImportPublicKey normalizes public key material to a jwk.Key.
// Accepted representations: PEM (SPKI), JWK JSON (string or []byte),
// a jwk.Key handle, or a *ecdsa.PublicKey. The curve must be P-256.
// A private key is accepted and reduced to its public part.
func ImportPublicKey(material any) (jwk.Key, error) {
	key, err := importKey(material)
	if err != nil {
		return nil, err
	}

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "cannot derive public key", err)
	}
	if err := requireP256(pub, false); err != nil {
		return nil, err
	}
	return pub, nil
}

// Thumbprint computes the RFC 7638 JWK thumbprint of a key,
// base64url-encoded without padding. This is the kid of every JWS the
// library emits.
func Thumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", sh.WrapError(sh.KindPayloadValidation, "cannot compute key thumbprint", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// importKey converts any accepted key representation to a jwk.Key.
func importKey(material any) (jwk.Key, error) {
	switch m := material.(type) {
	case nil:
		return nil, sh.NewError(sh.KindPayloadValidation, "key material must not be nil")
	case jwk.Key:
		return m, nil
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		key, err := jwk.Import(m)
		if err != nil {
			return nil, sh.WrapError(sh.KindPayloadValidation, "cannot import raw key", err)
		}
		return key, nil
	case string:
		return parseKeyBytes([]byte(m))
	case []byte:
		return parseKeyBytes(m)
	default:
		return nil, sh.Errorf(sh.KindPayloadValidation, "unsupported key material type %T", material)
	}
}

// parseKeyBytes handles PEM and JWK JSON encodings.
func parseKeyBytes(data []byte) (jwk.Key, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		key, err := jwk.ParseKey(data, jwk.WithPEM(true))
		if err != nil {
			return nil, sh.WrapError(sh.KindPayloadValidation, "cannot parse PEM key", err)
		}
		return key, nil
	}

	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "cannot parse JWK", err)
	}
	return key, nil
}

// requireP256 checks that a key is an ECDSA key on P-256.
func requireP256(key jwk.Key, private bool) error {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return sh.WrapError(sh.KindPayloadValidation, "cannot inspect key", err)
	}

	switch k := raw.(type) {
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return sh.NewError(sh.KindPayloadValidation, "key curve must be P-256")
		}
		return nil
	case *ecdsa.PublicKey:
		if private {
			return sh.NewError(sh.KindPayloadValidation, "expected a private key")
		}
		if k.Curve != elliptic.P256() {
			return sh.NewError(sh.KindPayloadValidation, "key curve must be P-256")
		}
		return nil
	default:
		return sh.Errorf(sh.KindPayloadValidation, "key must be an EC P-256 key, got %T", raw)
	}
}
