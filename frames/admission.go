package frames

import "sync/atomic"

// AdmissionPolicy decides which captured frames are forwarded to the
// buffer, decoupling the capture rate from the slower detection rate
// without growing a queue.
//
// The counter is 1-indexed: with Skip=K the Kth, 2Kth, 3Kth... frames
// are admitted, so Skip=1 admits every frame.
type AdmissionPolicy struct {
	skip  uint64
	count atomic.Uint64
}

// NewAdmissionPolicy creates a policy admitting every skip-th frame.
// Values below 1 are clamped to 1.
func NewAdmissionPolicy(skip int) *AdmissionPolicy {
	if skip < 1 {
		skip = 1
	}
	return &AdmissionPolicy{skip: uint64(skip)}
}

// Admit counts one incoming frame and reports whether it should be
// forwarded. Deterministic, no other side effects.
func (p *AdmissionPolicy) Admit() bool {
	return p.count.Add(1)%p.skip == 0
}

// Seen returns how many frames have been offered so far.
func (p *AdmissionPolicy) Seen() uint64 {
	return p.count.Load()
}
