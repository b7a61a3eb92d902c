package shl

import (
	"encoding/base64"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"

	sh "github.com/gofhir/smarthealth"
)

// EncryptFile encrypts file content for an SHL as a compact JWE with
// alg=dir and enc=A256GCM. The protected header always carries the
// content type (cty) and zip=DEF when compression is enabled. A fresh
// random 96-bit IV is drawn on every call, so encrypting the same
// content twice never yields the same output.
func EncryptFile(content []byte, keyB64u, contentType string, compress bool) (string, error) {
	if contentType == "" {
		return "", sh.NewError(sh.KindSHL, "content type is required")
	}

	key, err := decodeKey(keyB64u)
	if err != nil {
		return "", err
	}

	hdrs := jwe.NewHeaders()
	if err := hdrs.Set(jwe.ContentTypeKey, contentType); err != nil {
		return "", sh.WrapError(sh.KindSHL, "cannot set cty header", err)
	}

	options := []jwe.EncryptOption{
		jwe.WithKey(jwa.DIRECT(), key),
		jwe.WithContentEncryption(jwa.A256GCM()),
		jwe.WithProtectedHeaders(hdrs),
	}
	if compress {
		options = append(options, jwe.WithCompress(jwa.Deflate()))
	}

	ciphertext, err := jwe.Encrypt(content, options...)
	if err != nil {
		return "", sh.WrapError(sh.KindSHL, "file encryption failed", err)
	}
	return string(ciphertext), nil
}

// DecryptFile decrypts a compact JWE produced by EncryptFile and
// returns the plaintext together with the content type from the
// protected header. A missing cty is an error; compressed payloads are
// inflated transparently.
func DecryptFile(ciphertext, keyB64u string) ([]byte, string, error) {
	key, err := decodeKey(keyB64u)
	if err != nil {
		return nil, "", err
	}

	msg, err := jwe.Parse([]byte(ciphertext))
	if err != nil {
		return nil, "", sh.WrapError(sh.KindSHLDecryption, "malformed JWE", err)
	}

	contentType, ok := msg.ProtectedHeaders().ContentType()
	if !ok || contentType == "" {
		return nil, "", sh.NewError(sh.KindSHLDecryption,
			"Missing content type (cty) in JWE protected header")
	}

	plaintext, err := jwe.Decrypt([]byte(ciphertext), jwe.WithKey(jwa.DIRECT(), key))
	if err != nil {
		return nil, "", sh.WrapError(sh.KindSHLDecryption, "file decryption failed", err)
	}

	return plaintext, contentType, nil
}

// decodeKey base64url-decodes the SHL key. Length enforcement is left
// to the AES-256-GCM primitive, which rejects anything but 32 bytes.
func decodeKey(keyB64u string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(keyB64u)
	if err != nil {
		return nil, sh.WrapError(sh.KindSHL, "key is not base64url", err)
	}
	return key, nil
}
