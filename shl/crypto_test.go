package shl

import (
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"

	sh "github.com/gofhir/smarthealth"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	content := []byte(`{"resourceType":"Bundle","type":"collection"}`)

	for _, compress := range []bool{true, false} {
		ciphertext, err := EncryptFile(content, testKey(), sh.MIMETypeFHIRJSON, compress)
		if err != nil {
			t.Fatalf("EncryptFile(compress=%v) error = %v", compress, err)
		}

		if got := strings.Count(ciphertext, "."); got != 4 {
			t.Errorf("JWE has %d dots; want 4 (compact five-segment form)", got)
		}

		plaintext, contentType, err := DecryptFile(ciphertext, testKey())
		if err != nil {
			t.Fatalf("DecryptFile(compress=%v) error = %v", compress, err)
		}
		if string(plaintext) != string(content) {
			t.Errorf("round trip = %q; want %q", plaintext, content)
		}
		if contentType != sh.MIMETypeFHIRJSON {
			t.Errorf("cty = %q; want %q", contentType, sh.MIMETypeFHIRJSON)
		}
	}
}

func TestEncrypt_ContentTypeFidelity(t *testing.T) {
	ciphertext, err := EncryptFile([]byte(`{"verifiableCredential":["x"]}`), testKey(), sh.MIMETypeSmartHealthCard, true)
	if err != nil {
		t.Fatalf("EncryptFile error = %v", err)
	}

	_, contentType, err := DecryptFile(ciphertext, testKey())
	if err != nil {
		t.Fatalf("DecryptFile error = %v", err)
	}
	if contentType != sh.MIMETypeSmartHealthCard {
		t.Errorf("cty = %q; want %q", contentType, sh.MIMETypeSmartHealthCard)
	}
}

func TestEncrypt_IVUniqueness(t *testing.T) {
	content := []byte(`{"resourceType":"Patient","id":"123"}`)

	outputs := make(map[string]bool, 10)
	ivs := make(map[string]bool, 10)
	for i := 0; i < 10; i++ {
		ciphertext, err := EncryptFile(content, testKey(), sh.MIMETypeFHIRJSON, true)
		if err != nil {
			t.Fatalf("EncryptFile #%d error = %v", i, err)
		}
		if outputs[ciphertext] {
			t.Fatalf("EncryptFile #%d repeated an earlier ciphertext", i)
		}
		outputs[ciphertext] = true

		iv := strings.Split(ciphertext, ".")[2]
		if iv == "" {
			t.Fatalf("EncryptFile #%d produced empty IV segment", i)
		}
		if ivs[iv] {
			t.Fatalf("EncryptFile #%d repeated an earlier IV", i)
		}
		ivs[iv] = true
	}
}

func TestEncrypt_RejectsShortKey(t *testing.T) {
	shortKey := b64u([]byte("0123456789abcdef")) // 128 bits

	_, err := EncryptFile([]byte("data"), shortKey, sh.MIMETypeFHIRJSON, false)
	if err == nil {
		t.Fatal("128-bit key should be rejected")
	}
	if !sh.IsKind(err, sh.KindSHL) {
		t.Errorf("kind = %q; want shl", sh.KindOf(err))
	}
}

func TestEncrypt_RequiresContentType(t *testing.T) {
	if _, err := EncryptFile([]byte("data"), testKey(), "", false); err == nil {
		t.Error("empty content type should be rejected")
	}
}

func TestDecrypt_MissingContentType(t *testing.T) {
	// Build a JWE without cty, bypassing EncryptFile.
	ciphertext, err := jwe.Encrypt([]byte("data"),
		jwe.WithKey(jwa.DIRECT(), []byte("0123456789abcdef0123456789abcdef")),
		jwe.WithContentEncryption(jwa.A256GCM()))
	if err != nil {
		t.Fatalf("jwe.Encrypt error = %v", err)
	}

	_, _, err = DecryptFile(string(ciphertext), testKey())
	if err == nil {
		t.Fatal("missing cty should be rejected")
	}
	if !sh.IsKind(err, sh.KindSHLDecryption) {
		t.Errorf("kind = %q; want shl-decryption", sh.KindOf(err))
	}
	if !strings.Contains(err.Error(), "Missing content type (cty) in JWE protected header") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	ciphertext, err := EncryptFile([]byte("secret"), testKey(), sh.MIMETypeFHIRJSON, false)
	if err != nil {
		t.Fatalf("EncryptFile error = %v", err)
	}

	otherKey := b64u([]byte("ffffffffffffffffffffffffffffffff"))
	if _, _, err := DecryptFile(ciphertext, otherKey); !sh.IsKind(err, sh.KindSHLDecryption) {
		t.Errorf("kind = %q; want shl-decryption", sh.KindOf(err))
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	if _, _, err := DecryptFile("not-a-jwe", testKey()); !sh.IsKind(err, sh.KindSHLDecryption) {
		t.Errorf("kind = %q; want shl-decryption", sh.KindOf(err))
	}
}
