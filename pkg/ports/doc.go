/*
Package ports defines the driven ports (interfaces) of the espalier orchestration core.

These interfaces decouple the Service from concrete implementations, allowing the
same lifecycle engine to run against various storage backends, clocks and
specification sources.

# Key Interfaces

  - SpecRegistry: Holds the registered Specifications, one per entity type.
  - SpecSource: Produces Specifications from an external definition (e.g. YAML files).
  - StateStore: Persists EntityState snapshots together with their audit trail.
  - Compute: Supplies timestamps and identifiers.
  - PolicyProvider: Authorizes actors and publishes retry advice. Consumed by adapters only.
  - DistributedLocker: Provides distributed locking for opt-in per-entity serialization.

Storage adapters should call RunStateStoreContract from their tests.
*/
package ports
