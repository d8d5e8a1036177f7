package espalier

// Version is the release of the library and its binaries.
// Release builds override it with -ldflags "-X github.com/aretw0/espalier.Version=...".
var Version = "0.1.0-dev"
