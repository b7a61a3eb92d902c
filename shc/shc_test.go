package shc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lestrrat-go/jwx/v3/jwk"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/fhirbundle"
	"github.com/gofhir/smarthealth/jose"
	"github.com/gofhir/smarthealth/qr"
)

func testKeyPair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error = %v", err)
	}
	return priv, &priv.PublicKey
}

// immunizationBundle is the Patient/Immunization pair from the SMART
// Health Cards examples.
func immunizationBundle() map[string]any {
	return map[string]any{
		"resourceType": "Bundle",
		"type":         "collection",
		"entry": []any{
			map[string]any{
				"fullUrl": "https://fhir.example.org/Patient/123",
				"resource": map[string]any{
					"resourceType": "Patient",
					"id":           "123",
					"name": []any{
						map[string]any{"family": "Anyperson", "given": []any{"John"}},
					},
					"birthDate": "1951-01-20",
				},
			},
			map[string]any{
				"fullUrl": "https://fhir.example.org/Immunization/456",
				"resource": map[string]any{
					"resourceType": "Immunization",
					"id":           "456",
					"status":       "completed",
					"vaccineCode": map[string]any{
						"coding": []any{
							map[string]any{"system": "http://hl7.org/fhir/sid/cvx", "code": "207"},
						},
					},
					"patient":            map[string]any{"reference": "Patient/123"},
					"occurrenceDateTime": "2021-01-01",
				},
			},
		},
	}
}

func newTestIssuer(t *testing.T, opts ...IssuerOption) (*Issuer, *ecdsa.PublicKey) {
	t.Helper()
	priv, pub := testKeyPair(t)
	issuer, err := NewIssuer("https://issuer.example.org", priv, pub, opts...)
	if err != nil {
		t.Fatalf("NewIssuer error = %v", err)
	}
	return issuer, pub
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	issuer, pub := newTestIssuer(t)

	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	token := card.JWS()
	if got := strings.Count(token, "."); got != 2 {
		t.Fatalf("JWS has %d dots; want 2", got)
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[0])
	if err != nil {
		t.Fatalf("header decode error = %v", err)
	}
	var header map[string]any
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		t.Fatalf("header parse error = %v", err)
	}
	if header["alg"] != "ES256" {
		t.Errorf("alg = %v; want ES256", header["alg"])
	}
	if header["zip"] != "DEF" {
		t.Errorf("zip = %v; want DEF", header["zip"])
	}
	if header["kid"] != issuer.KeyID() {
		t.Errorf("kid = %v; want %s", header["kid"], issuer.KeyID())
	}

	reader := NewReader(WithPublicKey(pub))
	verified, err := reader.FromJWS(context.Background(), token)
	if err != nil {
		t.Fatalf("FromJWS error = %v", err)
	}

	// The card carries the QR-optimized form of the input.
	wantBundle, err := fhirbundle.Optimize(immunizationBundle(), fhirbundle.Options{StrictReferences: true})
	if err != nil {
		t.Fatalf("Optimize error = %v", err)
	}
	if !fhirbundle.Equal(verified.Bundle(), wantBundle) {
		t.Error("verified bundle differs from optimized input")
	}

	imm := verified.Bundle()["entry"].([]any)[1].(map[string]any)["resource"].(map[string]any)
	if ref := imm["patient"].(map[string]any)["reference"]; ref != "resource:0" {
		t.Errorf("patient.reference = %v; want resource:0", ref)
	}
}

func TestIssueVerify_WithoutOptimization(t *testing.T) {
	issuer, pub := newTestIssuer(t, WithQROptimization(false))

	in := immunizationBundle()
	card, err := issuer.Issue(in)
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	reader := NewReader(WithPublicKey(pub))
	verified, err := reader.FromJWS(context.Background(), card.JWS())
	if err != nil {
		t.Fatalf("FromJWS error = %v", err)
	}

	if diff := cmp.Diff(in, verified.Bundle()); diff != "" {
		t.Errorf("bundle round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestIssue_Expiration(t *testing.T) {
	issuer, _ := newTestIssuer(t, WithExpiration(24*time.Hour))

	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	p := card.Payload()
	if p.Expiration != p.NotBefore+86400 {
		t.Errorf("exp = %d; want nbf+86400 (%d)", p.Expiration, p.NotBefore+86400)
	}
}

func TestIssue_AdditionalTypes(t *testing.T) {
	issuer, _ := newTestIssuer(t, WithAdditionalTypes(sh.ImmunizationType))

	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	types := card.Types()
	if len(types) != 2 || types[0] != sh.HealthCardType || types[1] != sh.ImmunizationType {
		t.Errorf("types = %v", types)
	}
}

func TestIssue_InvalidBundle(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	if _, err := issuer.Issue(map[string]any{"resourceType": "Patient"}); !sh.IsKind(err, sh.KindBundleValidation) {
		t.Errorf("kind = %q; want bundle-validation", sh.KindOf(err))
	}
}

func TestFile_RoundTrip(t *testing.T) {
	issuer, pub := newTestIssuer(t)

	file, err := issuer.IssueFile(immunizationBundle())
	if err != nil {
		t.Fatalf("IssueFile error = %v", err)
	}

	data, err := file.Marshal()
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if !strings.Contains(string(data), `"verifiableCredential":[`) {
		t.Errorf("wire form = %s", data)
	}

	reader := NewReader(WithPublicKey(pub))
	cards, err := reader.FromFileJSON(context.Background(), data)
	if err != nil {
		t.Fatalf("FromFileJSON error = %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("cards = %d; want 1", len(cards))
	}
	if cards[0].Issuer() != "https://issuer.example.org" {
		t.Errorf("issuer = %q", cards[0].Issuer())
	}
}

func TestParseFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing key", `{"foo":[]}`, "does not contain expected verifiableCredential array"},
		{"not an array", `{"verifiableCredential":"jws"}`, "does not contain expected verifiableCredential array"},
		{"empty array", `{"verifiableCredential":[]}`, "File contains empty verifiableCredential array"},
		{"non-string entry", `{"verifiableCredential":[42]}`, "must be strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.data))
			if err == nil {
				t.Fatal("ParseFile should fail")
			}
			if !sh.IsKind(err, sh.KindFileFormat) {
				t.Errorf("kind = %q; want file-format", sh.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("message = %q; want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestQR_IssueScanVerify(t *testing.T) {
	issuer, pub := newTestIssuer(t, WithQREncoding(qr.EncodeOptions{
		EnableChunking:  true,
		MaxSingleQRSize: 200,
	}))

	contents, err := issuer.IssueQR(immunizationBundle())
	if err != nil {
		t.Fatalf("IssueQR error = %v", err)
	}
	if len(contents) < 2 {
		t.Fatalf("chunks = %d; want chunked output at max 200", len(contents))
	}

	reader := NewReader(WithPublicKey(pub))
	card, err := reader.FromQR(context.Background(), contents)
	if err != nil {
		t.Fatalf("FromQR error = %v", err)
	}
	if card.Issuer() != "https://issuer.example.org" {
		t.Errorf("issuer = %q", card.Issuer())
	}
}

func TestReader_NoKeyConfigured(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	reader := NewReader()
	if _, err := reader.FromJWS(context.Background(), card.JWS()); !sh.IsKind(err, sh.KindSignatureVerification) {
		t.Errorf("kind = %q; want signature-verification", sh.KindOf(err))
	}
}

func TestReader_WrongKey(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	_, otherPub := testKeyPair(t)
	reader := NewReader(WithPublicKey(otherPub))
	if _, err := reader.FromJWS(context.Background(), card.JWS()); !sh.IsKind(err, sh.KindSignatureVerification) {
		t.Errorf("kind = %q; want signature-verification", sh.KindOf(err))
	}
}

// resolverFunc adapts a function to the KeyResolver interface.
type resolverFunc func(ctx context.Context, iss, kid string) (jwk.Key, error)

func (f resolverFunc) ResolveKey(ctx context.Context, iss, kid string) (jwk.Key, error) {
	return f(ctx, iss, kid)
}

func TestReader_KeyResolver(t *testing.T) {
	issuer, pub := newTestIssuer(t)
	card, err := issuer.Issue(immunizationBundle())
	if err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	var askedIss, askedKid string
	resolver := resolverFunc(func(_ context.Context, iss, kid string) (jwk.Key, error) {
		askedIss, askedKid = iss, kid
		return jose.ImportPublicKey(pub)
	})

	reader := NewReader(WithKeyResolver(resolver))
	verified, err := reader.FromJWS(context.Background(), card.JWS())
	if err != nil {
		t.Fatalf("FromJWS error = %v", err)
	}
	if verified.Issuer() != "https://issuer.example.org" {
		t.Errorf("issuer = %q", verified.Issuer())
	}
	if askedIss != "https://issuer.example.org" {
		t.Errorf("resolver iss = %q", askedIss)
	}
	if askedKid != issuer.KeyID() {
		t.Errorf("resolver kid = %q; want %q", askedKid, issuer.KeyID())
	}
}

func TestIssueBatch(t *testing.T) {
	issuer, pub := newTestIssuer(t)

	bundles := []map[string]any{
		immunizationBundle(),
		{"resourceType": "Patient"}, // invalid
		immunizationBundle(),
	}

	items := issuer.IssueBatch(context.Background(), bundles)
	if len(items) != 3 {
		t.Fatalf("items = %d; want 3", len(items))
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("valid bundles failed: %v, %v", items[0].Err, items[2].Err)
	}
	if items[1].Err == nil {
		t.Error("invalid bundle should fail")
	}

	reader := NewReader(WithPublicKey(pub))
	if _, err := reader.FromJWS(context.Background(), items[0].Card.JWS()); err != nil {
		t.Errorf("batch card failed verification: %v", err)
	}
}

func TestMetricsWiring(t *testing.T) {
	m := sh.NewMetrics()
	issuer, pub := newTestIssuer(t, WithMetrics(m))

	if _, err := issuer.Issue(immunizationBundle()); err != nil {
		t.Fatalf("Issue error = %v", err)
	}

	reader := NewReader(WithPublicKey(pub), WithReaderMetrics(m))
	card, _ := issuer.Issue(immunizationBundle())
	if _, err := reader.FromJWS(context.Background(), card.JWS()); err != nil {
		t.Fatalf("FromJWS error = %v", err)
	}

	s := m.Read()
	if s.CardsIssued != 2 {
		t.Errorf("CardsIssued = %d; want 2", s.CardsIssued)
	}
	if s.CardsVerified != 1 {
		t.Errorf("CardsVerified = %d; want 1", s.CardsVerified)
	}
}
