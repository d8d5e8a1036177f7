// Package system provides the production Compute provider.
package system

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Compute reads the wall clock and generates random (v4) UUIDs.
type Compute struct{}

// New returns the system Compute provider.
func New() Compute { return Compute{} }

// Now returns the current UTC time.
func (Compute) Now() time.Time { return time.Now().UTC() }

// UUID returns a new random identifier.
func (Compute) UUID() string { return uuid.NewString() }

// Fixed is a deterministic Compute for tests: the clock only moves when told to
// and identifiers are derived from a counter.
type Fixed struct {
	At     time.Time
	Step   time.Duration
	Prefix string

	seq int
}

// Now returns At and then advances it by Step.
func (f *Fixed) Now() time.Time {
	now := f.At
	f.At = f.At.Add(f.Step)
	return now
}

// UUID returns Prefix followed by a sequence number.
func (f *Fixed) UUID() string {
	f.seq++
	return f.Prefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.Itoa(f.seq))).String()
}
