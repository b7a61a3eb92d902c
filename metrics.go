package smarthealth

import (
	"sync/atomic"
	"time"
)

// Metrics tracks credential-processing metrics using lock-free atomic
// operations. All methods are safe for concurrent use.
type Metrics struct {
	// Issuance counts
	cardsIssued   atomic.Uint64
	issueFailures atomic.Uint64

	// Verification counts
	cardsVerified   atomic.Uint64
	verifyFailures  atomic.Uint64
	expiredRejected atomic.Uint64

	// QR codec counts
	qrEncodes atomic.Uint64
	qrDecodes atomic.Uint64

	// SHL counts
	manifestsBuilt atomic.Uint64
	linksResolved  atomic.Uint64

	// Timing (stored as nanoseconds)
	signTimeTotal   atomic.Uint64
	verifyTimeTotal atomic.Uint64

	// Key-set cache metrics
	keyCacheHits   atomic.Uint64
	keyCacheMisses atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordIssue records a completed issuance.
func (m *Metrics) RecordIssue(duration time.Duration, ok bool) {
	if ok {
		m.cardsIssued.Add(1)
	} else {
		m.issueFailures.Add(1)
	}
	m.signTimeTotal.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are non-negative
}

// RecordVerify records a completed verification.
func (m *Metrics) RecordVerify(duration time.Duration, ok bool) {
	if ok {
		m.cardsVerified.Add(1)
	} else {
		m.verifyFailures.Add(1)
	}
	m.verifyTimeTotal.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are non-negative
}

// RecordExpired records a credential rejected for expiration.
func (m *Metrics) RecordExpired() {
	m.expiredRejected.Add(1)
}

// RecordQREncode records a QR encode operation.
func (m *Metrics) RecordQREncode() {
	m.qrEncodes.Add(1)
}

// RecordQRDecode records a QR decode operation.
func (m *Metrics) RecordQRDecode() {
	m.qrDecodes.Add(1)
}

// RecordManifestBuild records one manifest assembly.
func (m *Metrics) RecordManifestBuild() {
	m.manifestsBuilt.Add(1)
}

// RecordLinkResolve records one SMART Health Link resolution.
func (m *Metrics) RecordLinkResolve() {
	m.linksResolved.Add(1)
}

// RecordKeyCacheHit records a key-set cache hit.
func (m *Metrics) RecordKeyCacheHit() {
	m.keyCacheHits.Add(1)
}

// RecordKeyCacheMiss records a key-set cache miss.
func (m *Metrics) RecordKeyCacheMiss() {
	m.keyCacheMisses.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	CardsIssued     uint64 `json:"cardsIssued"`
	IssueFailures   uint64 `json:"issueFailures"`
	CardsVerified   uint64 `json:"cardsVerified"`
	VerifyFailures  uint64 `json:"verifyFailures"`
	ExpiredRejected uint64 `json:"expiredRejected"`
	QREncodes       uint64 `json:"qrEncodes"`
	QRDecodes       uint64 `json:"qrDecodes"`
	ManifestsBuilt  uint64 `json:"manifestsBuilt"`
	LinksResolved   uint64 `json:"linksResolved"`
	SignTimeTotal   uint64 `json:"signTimeTotalNs"`
	VerifyTimeTotal uint64 `json:"verifyTimeTotalNs"`
	KeyCacheHits    uint64 `json:"keyCacheHits"`
	KeyCacheMisses  uint64 `json:"keyCacheMisses"`
}

// Read returns a consistent-enough snapshot of all counters.
func (m *Metrics) Read() Snapshot {
	return Snapshot{
		CardsIssued:     m.cardsIssued.Load(),
		IssueFailures:   m.issueFailures.Load(),
		CardsVerified:   m.cardsVerified.Load(),
		VerifyFailures:  m.verifyFailures.Load(),
		ExpiredRejected: m.expiredRejected.Load(),
		QREncodes:       m.qrEncodes.Load(),
		QRDecodes:       m.qrDecodes.Load(),
		ManifestsBuilt:  m.manifestsBuilt.Load(),
		LinksResolved:   m.linksResolved.Load(),
		SignTimeTotal:   m.signTimeTotal.Load(),
		VerifyTimeTotal: m.verifyTimeTotal.Load(),
		KeyCacheHits:    m.keyCacheHits.Load(),
		KeyCacheMisses:  m.keyCacheMisses.Load(),
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.cardsIssued.Store(0)
	m.issueFailures.Store(0)
	m.cardsVerified.Store(0)
	m.verifyFailures.Store(0)
	m.expiredRejected.Store(0)
	m.qrEncodes.Store(0)
	m.qrDecodes.Store(0)
	m.manifestsBuilt.Store(0)
	m.linksResolved.Store(0)
	m.signTimeTotal.Store(0)
	m.verifyTimeTotal.Store(0)
	m.keyCacheHits.Store(0)
	m.keyCacheMisses.Store(0)
}
