package shc

import (
	"github.com/gofhir/smarthealth/qr"
	"github.com/gofhir/smarthealth/vc"
)

// Card is a signed SMART Health Card: the compact JWS plus its decoded
// credential payload. Cards are immutable; readers only hand out cards
// whose signature verified.
type Card struct {
	jws     string
	payload *vc.Payload
}

// newCard binds a JWS to its payload.
func newCard(jws string, payload *vc.Payload) *Card {
	return &Card{jws: jws, payload: payload}
}

// JWS returns the compact JWS form.
func (c *Card) JWS() string {
	return c.jws
}

// Payload returns the decoded credential payload.
func (c *Card) Payload() *vc.Payload {
	return c.payload
}

// Issuer returns the iss claim.
func (c *Card) Issuer() string {
	return c.payload.Issuer
}

// Types returns the credential type list.
func (c *Card) Types() []string {
	out := make([]string, len(c.payload.VC.Type))
	copy(out, c.payload.VC.Type)
	return out
}

// Bundle returns the FHIR Bundle the card carries.
func (c *Card) Bundle() map[string]any {
	return c.payload.VC.CredentialSubject.FHIRBundle
}

// File wraps the card as a single-credential file.
func (c *Card) File() *File {
	return NewFile(c.jws)
}

// QRCodes encodes the card as framed QR content strings.
func (c *Card) QRCodes(opts qr.EncodeOptions) ([]string, error) {
	return qr.Encode(c.jws, opts)
}
