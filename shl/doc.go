// Package shl generates, serves and resolves SMART Health Links.
//
// An SHL is a shlink:/ URI wrapping a manifest URL and an AES-256-GCM
// key. The Builder keeps an in-memory registry of encrypted files
// behind injected storage callbacks and assembles a fresh manifest
// document per request; the Viewer inverts the pipeline, resolving a
// URI back to verified health cards and FHIR resources.
//
// Manifest documents are never cached: every BuildManifest call
// regenerates location URLs so short-lived storage URLs keep rotating.
package shl
