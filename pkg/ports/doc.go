/*
Package ports defines the driven ports (interfaces) for the skald runtime.

These interfaces decouple the engine from external implementations, so a host
can pick its own storage backend for saved games and its own source of
compiled story bundles.

# Key Interfaces

  - SnapshotStore: persists execution snapshots for "stop & resume" flows.
  - BundleLoader: retrieves compiled story bundles by name.
  - DistributedLocker: coordinates session access across replicas.
*/
package ports
