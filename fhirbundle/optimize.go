package fhirbundle

import (
	"fmt"
	"regexp"

	sh "github.com/gofhir/smarthealth"
)

// Options configures the QR optimization.
type Options struct {
	// StrictReferences makes a dangling Type/id reference an error of
	// kind KindInvalidBundleReference. When false, unresolvable
	// references are left as-is.
	StrictReferences bool
}

// typeIDPattern matches relative literal references of the form "Type/id".
var typeIDPattern = regexp.MustCompile(`^[A-Z][A-Za-z]*/[A-Za-z0-9.\-]{1,64}$`)

// Optimize rewrites a Bundle for QR density. The input is not mutated;
// a new bundle is returned. The rewrite is deterministic and idempotent
// on its own output.
//
// Per entry at index i the rewrite sets fullUrl to "resource:i", drops
// the resource id, narrative text and meta (keeping meta.security when
// present), removes CodeableConcept.text and Coding.display, rewrites
// Type/id references to resource:<index> URIs and drops all null and
// empty-array properties. A missing Bundle type is set to collection.
func Optimize(bundle map[string]any, opts Options) (map[string]any, error) {
	if err := Validate(bundle); err != nil {
		return nil, err
	}

	entries, _ := bundle["entry"].([]any)
	idx := newEntryIndex(entries)

	out := make(map[string]any, len(bundle))
	for key, value := range bundle {
		if key == "id" || key == "entry" {
			continue
		}
		cleaned, keep := cleanValue(value)
		if keep {
			out[key] = cleaned
		}
	}
	if _, present := out["type"]; !present {
		out["type"] = string(TypeCollection)
	}

	// A missing or empty entry array stays absent in the output, like
	// every other empty-array property.
	if len(entries) == 0 {
		return out, nil
	}

	outEntries := make([]any, 0, len(entries))
	for i, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}

		outEntry := make(map[string]any, 2)
		outEntry["fullUrl"] = fmt.Sprintf("resource:%d", i)

		resource, ok := entry["resource"].(map[string]any)
		if !ok {
			outEntries = append(outEntries, outEntry)
			continue
		}

		optimized, err := optimizeResource(resource, idx, opts)
		if err != nil {
			return nil, err
		}
		outEntry["resource"] = optimized
		outEntries = append(outEntries, outEntry)
	}
	out["entry"] = outEntries

	return out, nil
}

// optimizeResource rewrites a single entry resource.
func optimizeResource(resource map[string]any, idx *entryIndex, opts Options) (map[string]any, error) {
	out := make(map[string]any, len(resource))

	for key, value := range resource {
		switch key {
		case "id", "text":
			continue
		case "meta":
			if security := keepSecurity(value); security != nil {
				out["meta"] = security
			}
			continue
		}

		rewritten, err := rewriteValue(value, idx, opts, false)
		if err != nil {
			return nil, err
		}
		cleaned, keep := postClean(rewritten)
		if keep {
			out[key] = cleaned
		}
	}

	return out, nil
}

// keepSecurity extracts meta.security when present; every other meta key
// is dropped. Returns nil when nothing survives.
func keepSecurity(rawMeta any) map[string]any {
	meta, ok := rawMeta.(map[string]any)
	if !ok {
		return nil
	}
	security, ok := meta["security"]
	if !ok {
		return nil
	}
	if arr, isArr := security.([]any); isArr && len(arr) == 0 {
		return nil
	}
	return map[string]any{"security": security}
}

// rewriteValue walks a resource value, rewriting references and removing
// QR-irrelevant display text. inCoding is true when the current object
// is an element of a "coding" array.
func rewriteValue(value any, idx *entryIndex, opts Options, inCoding bool) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return rewriteObject(v, idx, opts, inCoding)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			rewritten, err := rewriteValue(item, idx, opts, inCoding)
			if err != nil {
				return nil, err
			}
			out = append(out, rewritten)
		}
		return out, nil
	default:
		return value, nil
	}
}

func rewriteObject(obj map[string]any, idx *entryIndex, opts Options, inCoding bool) (any, error) {
	_, hasCoding := obj["coding"].([]any)

	out := make(map[string]any, len(obj))
	for key, value := range obj {
		// CodeableConcept.text (heuristic: the object carries a coding
		// array) and Coding.display (the object sits inside one) are
		// dropped; display elsewhere, e.g. Reference.display, survives.
		if key == "text" && hasCoding {
			continue
		}
		if key == "display" && inCoding {
			continue
		}

		if key == "reference" {
			if ref, ok := value.(string); ok && typeIDPattern.MatchString(ref) {
				if target, found := idx.resolve(ref); found {
					out[key] = fmt.Sprintf("resource:%d", target)
					continue
				}
				if opts.StrictReferences {
					return nil, sh.Errorf(sh.KindInvalidBundleReference,
						"reference '%s' does not resolve to a bundle entry", ref)
				}
			}
			if value != nil {
				out[key] = value
			}
			continue
		}

		childInCoding := key == "coding"
		rewritten, err := rewriteValue(value, idx, opts, childInCoding)
		if err != nil {
			return nil, err
		}
		cleaned, keep := postClean(rewritten)
		if keep {
			out[key] = cleaned
		}
	}
	return out, nil
}

// cleanValue recursively drops null and empty-array property values
// (used for bundle-level properties). Array elements are kept even when
// null; only object properties are subject to dropping. The bool result
// reports whether the value should be kept as a property.
func cleanValue(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]any, 0, len(v))
		for _, item := range v {
			cleaned, _ := cleanValue(item)
			out = append(out, cleaned)
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			cleaned, keep := cleanValue(item)
			if keep {
				out[key] = cleaned
			}
		}
		return out, true
	default:
		return value, true
	}
}

// postClean applies the null/empty-array dropping rule to an already
// rewritten value.
func postClean(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	default:
		return value, true
	}
}
