// Package main (cmd/provisioner) implements the deployment driver for TEE
// software modules.
//
// The provisioner reads a deployment descriptor naming nodes and the modules
// to run on them, then drives every module through its provisioning pipeline:
// building the module with the toolchain of its TEE family, deploying the
// binary to its node, deriving the module key and attesting the deployed
// module. Stage results are memoized, so modules shared between stages are
// built and deployed exactly once per run.
//
// The resulting deployment state document records the outcome of every stage.
// It can be written to a file, printed to standard output, or persisted to
// one or more state backends (file, S3, IPFS or Vault), and a later
// invocation loading that document skips the stages it already records.
//
// Four commands map to pipeline depths:
//
//   - build: compile every module, touching no node
//   - deploy: build, deploy and derive keys
//   - attest: the full pipeline including attestation
//   - dump: print the loaded state document without running anything
//
// With --listen-addr the provisioner keeps serving the deployment status API
// after the run, exposing per-module lifecycle state and endpoint resolution
// alongside health checks and Prometheus metrics.
//
// Example usage against a descriptor file:
//
//	provisioner deploy --descriptor deployment.yaml \
//	    --build-dir ./build \
//	    --output deployment-state.yaml
//
// Example usage resuming from replicated persisted state:
//
//	provisioner attest \
//	    --state-uri file:///var/lib/provisioner/state.yaml \
//	    --state-uri s3://provisioner-state/prod.yaml \
//	    --archive-artifacts
package main
