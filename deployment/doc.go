// Package deployment turns a deployment descriptor into provisioned
// modules.
//
// A descriptor is a YAML document listing the nodes of a deployment, the
// modules to provision onto them and, optionally, the attestation manager
// to verify them through. Load constructs the node catalog and the module
// backends; Run then drives every module through the provisioning
// pipeline:
//
//	build -> deploy -> key -> attest
//
// Stages are memoized per module, so a descriptor restored from persisted
// state only performs the work its recorded stage results are missing.
// Modules carrying a priority provision strictly before the rest, one
// priority group at a time in ascending order; modules sharing a priority,
// and modules without one, provision concurrently.
//
// After a run, Dump assembles the updated state document in the same shape
// the descriptor was loaded from, and Persist writes it to a state
// backend, from where a later invocation resumes.
package deployment
