// Package fhirbundle validates FHIR Bundles and rewrites them for QR
// density.
//
// The QR optimization is a deterministic structural rewrite: it replaces
// inter-resource references with resource:<index> URIs, strips elements
// the SMART Health Cards spec designates as non-essential (ids, meta,
// narrative text, CodeableConcept.text, Coding.display) and drops null
// and empty-array properties. It operates on raw JSON maps so unknown
// elements survive untouched.
//
// All functions in this package are pure; nothing here performs I/O.
package fhirbundle
