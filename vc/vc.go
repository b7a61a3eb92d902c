// Package vc constructs and validates the W3C Verifiable Credential
// payload carried inside a SMART Health Card JWS.
//
// The payload shape follows the SMART Health Cards framework: the JWT
// claims iss/nbf/exp plus a vc claim holding the credential type list
// and a credentialSubject with the FHIR version and Bundle.
package vc

import (
	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/fhirbundle"
)

// Payload is the JWT payload of a SMART Health Card.
type Payload struct {
	// Issuer is the iss claim, the issuer's base URL.
	Issuer string `json:"iss"`

	// NotBefore is the nbf claim in epoch seconds.
	NotBefore int64 `json:"nbf"`

	// Expiration is the exp claim in epoch seconds, 0 when unset.
	Expiration int64 `json:"exp,omitempty"`

	// VC is the verifiable credential envelope.
	VC Credential `json:"vc"`
}

// Credential is the vc claim.
type Credential struct {
	// Type is the ordered credential type list. The first element is
	// always the health-card URI.
	Type []string `json:"type"`

	// CredentialSubject carries the clinical payload.
	CredentialSubject Subject `json:"credentialSubject"`
}

// Subject is the credentialSubject claim.
type Subject struct {
	// FHIRVersion is the FHIR release of the bundle, e.g. "4.0.1".
	FHIRVersion string `json:"fhirVersion"`

	// FHIRBundle is the FHIR Bundle resource.
	FHIRBundle map[string]any `json:"fhirBundle"`
}

// CreateOptions configures Create.
type CreateOptions struct {
	// FHIRVersion overrides the default FHIR version ("4.0.1").
	FHIRVersion string

	// AdditionalTypes are appended after the health-card type URI, in
	// input order.
	AdditionalTypes []string
}

// Create wraps a FHIR Bundle in a credential envelope. The bundle is
// validated first; iss and nbf are the signer's concern and stay zero
// here.
func Create(bundle map[string]any, opts CreateOptions) (*Credential, error) {
	if err := fhirbundle.Validate(bundle); err != nil {
		return nil, err
	}

	version := opts.FHIRVersion
	if version == "" {
		version = sh.DefaultFHIRVersion
	}
	if !sh.ValidFHIRVersion(version) {
		return nil, sh.Errorf(sh.KindVCValidation, "invalid FHIR version '%s'", version)
	}

	types := make([]string, 0, 1+len(opts.AdditionalTypes))
	types = append(types, sh.HealthCardType)
	for _, t := range opts.AdditionalTypes {
		if t == sh.HealthCardType {
			continue
		}
		types = append(types, t)
	}

	return &Credential{
		Type: types,
		CredentialSubject: Subject{
			FHIRVersion: version,
			FHIRBundle:  bundle,
		},
	}, nil
}

// Validate re-checks the invariants of a credential payload: the type
// list is non-empty and contains the health-card URI, the FHIR version
// is well-formed and the bundle is valid.
func Validate(p *Payload) error {
	if p == nil {
		return sh.NewError(sh.KindVCValidation, "payload must not be nil")
	}
	if p.Issuer == "" {
		return sh.NewError(sh.KindVCValidation, "payload must have an iss claim")
	}
	if p.NotBefore == 0 {
		return sh.NewError(sh.KindVCValidation, "payload must have an nbf claim")
	}
	if p.Expiration != 0 && p.Expiration <= p.NotBefore {
		return sh.NewError(sh.KindVCValidation, "exp must be greater than nbf")
	}
	return ValidateCredential(&p.VC)
}

// ValidateCredential checks the vc claim alone.
func ValidateCredential(c *Credential) error {
	if c == nil {
		return sh.NewError(sh.KindVCValidation, "vc claim must not be nil")
	}
	if len(c.Type) == 0 {
		return sh.NewError(sh.KindVCValidation, "vc.type must be a non-empty array")
	}

	found := false
	for _, t := range c.Type {
		if t == sh.HealthCardType {
			found = true
			break
		}
	}
	if !found {
		return sh.Errorf(sh.KindVCValidation, "vc.type must contain '%s'", sh.HealthCardType)
	}

	if !sh.ValidFHIRVersion(c.CredentialSubject.FHIRVersion) {
		return sh.Errorf(sh.KindVCValidation,
			"invalid fhirVersion '%s'", c.CredentialSubject.FHIRVersion)
	}

	return fhirbundle.Validate(c.CredentialSubject.FHIRBundle)
}
