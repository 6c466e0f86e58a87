// Package modules implements the software module lifecycle for the
// supported TEE backends.
//
// A module advances through four stages: build, deploy, attest and key
// derivation. Each stage runs at most once per process. The stage
// results are held in memoized cells, so concurrent callers of the same
// stage join a single execution and later callers observe the recorded
// outcome, including a recorded failure.
//
// # Lifecycle Stages
//
// Stages depend on one another: deployment waits for the build, key
// derivation waits for build and deployment, and attestation waits for
// the identifier and key of the module. A stage triggered indirectly
// through a dependency is the same memoized execution a direct call
// would join.
//
//	module, err := modules.NewSancusModule(state, node, env)
//	if err != nil {
//	    return err
//	}
//	if err := module.Attest(ctx); err != nil {
//	    return err
//	}
//	key, err := module.Key(ctx)
//
// # Module Backends
//
// SancusModule targets the Sancus extensions of the openMSP430. Sources
// are compiled and linked with the Sancus toolchain, the node assigns
// the protection ID and load addresses at deployment, and the module key
// is derived by relinking the binary at those addresses and running the
// vendor key derivation over the relocated image.
//
// TrustZoneModule targets trusted applications for OP-TEE on ARM
// TrustZone. The TA is built with the OP-TEE dev kit under its UUID, the
// module ID comes from the deployment descriptor, and the module key is
// derived from the node secret and the TA hash embedded in the signed
// image header.
//
// # Persisted State
//
// Modules restore from and dump to interfaces.ModuleState. Stage results
// recorded in the state pre-resolve the memo cells, so reprovisioning an
// already deployed module runs no external tools. Dumping records stage
// results only for deployed modules.
package modules
