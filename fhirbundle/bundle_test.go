package fhirbundle

import (
	"testing"

	sh "github.com/gofhir/smarthealth"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		bundle  map[string]any
		wantErr bool
	}{
		{
			name:    "nil bundle",
			bundle:  nil,
			wantErr: true,
		},
		{
			name:    "wrong resourceType",
			bundle:  map[string]any{"resourceType": "Patient"},
			wantErr: true,
		},
		{
			name:    "minimal valid",
			bundle:  map[string]any{"resourceType": "Bundle", "type": "collection"},
			wantErr: false,
		},
		{
			name:    "missing type tolerated",
			bundle:  map[string]any{"resourceType": "Bundle"},
			wantErr: false,
		},
		{
			name:    "unknown type rejected",
			bundle:  map[string]any{"resourceType": "Bundle", "type": "document"},
			wantErr: true,
		},
		{
			name:    "non-string type",
			bundle:  map[string]any{"resourceType": "Bundle", "type": 7.0},
			wantErr: true,
		},
		{
			name: "entry not an array",
			bundle: map[string]any{
				"resourceType": "Bundle", "type": "collection",
				"entry": "nope",
			},
			wantErr: true,
		},
		{
			name: "entry without resource",
			bundle: map[string]any{
				"resourceType": "Bundle", "type": "collection",
				"entry": []any{map[string]any{"fullUrl": "urn:x"}},
			},
			wantErr: true,
		},
		{
			name: "resource without resourceType",
			bundle: map[string]any{
				"resourceType": "Bundle", "type": "collection",
				"entry": []any{map[string]any{"resource": map[string]any{"id": "1"}}},
			},
			wantErr: true,
		},
		{
			name: "valid with entries",
			bundle: map[string]any{
				"resourceType": "Bundle", "type": "collection",
				"entry": []any{
					map[string]any{"fullUrl": "urn:1", "resource": map[string]any{"resourceType": "Patient", "id": "123"}},
				},
			},
			wantErr: false,
		},
		{
			name:    "transaction-response accepted",
			bundle:  map[string]any{"resourceType": "Bundle", "type": "transaction-response"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.bundle)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil && !sh.IsKind(err, sh.KindBundleValidation) {
				t.Errorf("error kind = %q; want bundle-validation", sh.KindOf(err))
			}
		})
	}
}

func TestParseType(t *testing.T) {
	if _, err := ParseType("collection"); err != nil {
		t.Errorf("ParseType(collection) error = %v", err)
	}
	if _, err := ParseType("document"); err == nil {
		t.Error("ParseType(document) should fail")
	}
}

func TestResources(t *testing.T) {
	bundle := map[string]any{
		"resourceType": "Bundle",
		"type":         "collection",
		"entry": []any{
			map[string]any{"resource": map[string]any{"resourceType": "Patient", "id": "1"}},
			map[string]any{"fullUrl": "urn:no-resource"},
			map[string]any{"resource": map[string]any{"resourceType": "Immunization", "id": "2"}},
		},
	}

	rs := Resources(bundle)
	if len(rs) != 2 {
		t.Fatalf("len(Resources) = %d; want 2", len(rs))
	}
	if rt, _ := rs[1]["resourceType"].(string); rt != "Immunization" {
		t.Errorf("resource[1] type = %q; want Immunization", rt)
	}
}

func TestCanonical_Deterministic(t *testing.T) {
	a := map[string]any{"b": 1.0, "a": []any{"x", "y"}, "c": map[string]any{"z": true, "y": nil}}

	c1, err := Canonical(a)
	if err != nil {
		t.Fatalf("Canonical error = %v", err)
	}
	c2, err := Canonical(a)
	if err != nil {
		t.Fatalf("Canonical error = %v", err)
	}
	if string(c1) != string(c2) {
		t.Errorf("Canonical not deterministic: %s vs %s", c1, c2)
	}
}

func TestEqual(t *testing.T) {
	a := map[string]any{"resourceType": "Bundle", "type": "collection", "total": 2.0}
	b := map[string]any{"total": 2.0, "type": "collection", "resourceType": "Bundle"}

	if !Equal(a, b) {
		t.Error("bundles with identical content should be Equal regardless of key order")
	}

	b["total"] = 3.0
	if Equal(a, b) {
		t.Error("bundles with different content should not be Equal")
	}
}
