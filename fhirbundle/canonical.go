package fhirbundle

import (
	"encoding/json"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	sh "github.com/gofhir/smarthealth"
)

// Canonical serializes v to RFC 8785 canonical JSON. Two structurally
// equal bundles always produce identical bytes, which makes the output
// usable for equality checks and stable snapshots.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, sh.WrapError(sh.KindBundleValidation, "bundle is not serializable", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, sh.WrapError(sh.KindBundleValidation, "bundle cannot be canonicalized", err)
	}
	return out, nil
}

// Equal reports whether two bundles are structurally identical, by
// comparing their canonical JSON forms. An unserializable input compares
// unequal.
func Equal(a, b map[string]any) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return string(ca) == string(cb)
}
