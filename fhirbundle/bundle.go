package fhirbundle

import (
	"fmt"

	sh "github.com/gofhir/smarthealth"
)

// Type represents the type of Bundle.
type Type string

// Bundle types accepted by the validator.
const (
	TypeCollection          Type = "collection"
	TypeBatch               Type = "batch"
	TypeHistory             Type = "history"
	TypeSearchset           Type = "searchset"
	TypeTransaction         Type = "transaction"
	TypeTransactionResponse Type = "transaction-response"
)

// acceptedTypes is the set of Bundle.type values the validator accepts.
var acceptedTypes = map[Type]bool{
	TypeCollection:          true,
	TypeBatch:               true,
	TypeHistory:             true,
	TypeSearchset:           true,
	TypeTransaction:         true,
	TypeTransactionResponse: true,
}

// Validate checks the shape of a FHIR Bundle. It returns an error of
// kind KindBundleValidation describing the first problem found.
//
// A missing type is tolerated (Optimize fills it in as collection),
// but a type outside the accepted set is rejected.
func Validate(bundle map[string]any) error {
	if bundle == nil {
		return sh.NewError(sh.KindBundleValidation, "bundle must be a non-null object")
	}

	resourceType, _ := bundle["resourceType"].(string)
	if resourceType != "Bundle" {
		return sh.Errorf(sh.KindBundleValidation, "resourceType must be 'Bundle', got '%s'", resourceType)
	}

	if rawType, present := bundle["type"]; present {
		typeStr, ok := rawType.(string)
		if !ok {
			return sh.NewError(sh.KindBundleValidation, "Bundle.type must be a string")
		}
		if !acceptedTypes[Type(typeStr)] {
			return sh.Errorf(sh.KindBundleValidation, "unknown Bundle type '%s'", typeStr)
		}
	}

	rawEntries, present := bundle["entry"]
	if !present {
		return nil
	}

	entries, ok := rawEntries.([]any)
	if !ok {
		return sh.NewError(sh.KindBundleValidation, "Bundle.entry must be an array")
	}

	for i, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			return sh.Errorf(sh.KindBundleValidation, "Bundle.entry[%d] must be an object", i)
		}

		resource, ok := entry["resource"].(map[string]any)
		if !ok {
			return sh.Errorf(sh.KindBundleValidation, "Bundle.entry[%d] must contain a resource", i)
		}

		if rt, _ := resource["resourceType"].(string); rt == "" {
			return sh.Errorf(sh.KindBundleValidation, "Bundle.entry[%d].resource must have a resourceType", i)
		}
	}

	return nil
}

// entryIndex maps "Type/id" pairs to entry positions.
// It is built in one pass over the original bundle before rewriting, so
// references resolve against pre-optimization ids.
type entryIndex struct {
	byTypeID map[string]int
}

// newEntryIndex indexes the entries of a bundle for reference resolution.
func newEntryIndex(entries []any) *entryIndex {
	idx := &entryIndex{byTypeID: make(map[string]int, len(entries))}

	for i, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		resource, ok := entry["resource"].(map[string]any)
		if !ok {
			continue
		}

		resourceType, _ := resource["resourceType"].(string)
		id, _ := resource["id"].(string)
		if resourceType == "" || id == "" {
			continue
		}

		key := resourceType + "/" + id
		if _, exists := idx.byTypeID[key]; !exists {
			idx.byTypeID[key] = i
		}
	}

	return idx
}

// resolve returns the entry index for a "Type/id" reference.
func (idx *entryIndex) resolve(reference string) (int, bool) {
	i, ok := idx.byTypeID[reference]
	return i, ok
}

// Resources returns the resource maps of a bundle's entries, in order.
// Entries without a resource are skipped.
func Resources(bundle map[string]any) []map[string]any {
	entries, _ := bundle["entry"].([]any)
	out := make([]map[string]any, 0, len(entries))
	for _, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		if resource, ok := entry["resource"].(map[string]any); ok {
			out = append(out, resource)
		}
	}
	return out
}

// String implements fmt.Stringer for Type.
func (t Type) String() string {
	return string(t)
}

// ParseType validates a raw bundle type string.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !acceptedTypes[t] {
		return "", sh.NewError(sh.KindBundleValidation, fmt.Sprintf("unknown Bundle type '%s'", s))
	}
	return t, nil
}
