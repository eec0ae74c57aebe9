// Package pick defines the core types and interfaces shared across the
// image picker subsystems: the product lifecycle, candidate evaluation
// contracts, and the external collaborator interfaces (search provider,
// product store, blob archive, event publisher).
package pick
