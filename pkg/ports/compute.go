package ports

import "time"

// Compute supplies the non-deterministic inputs of the Service.
// Tests substitute a fixed implementation to get reproducible timestamps and ids.
type Compute interface {
	Now() time.Time
	UUID() string
}
