// Package modules implements the software module lifecycle for the
// supported TEE backends: Sancus on the openMSP430 and OP-TEE trusted
// applications on ARM TrustZone.
//
// Every module implements the interfaces.Module lifecycle:
//
//	type Module interface {
//		// Build produces the module binary and returns its path.
//		Build(ctx context.Context) (string, error)
//
//		// Deploy ships the binary to the module's node.
//		Deploy(ctx context.Context) (DeployInfo, error)
//
//		// Attest verifies the deployed module.
//		Attest(ctx context.Context) error
//
//		// Key derives the module key bound to the deployed instance.
//		Key(ctx context.Context) (ModuleKey, error)
//	}
//
// # Memoization
//
// All four stages are memoized through Cell, a single-flight result
// slot. The first caller of a stage starts the computation on a context
// detached from its own cancellation, so abandoning a call never aborts
// the stage for the other callers. A failure is recorded and replayed to
// every later caller; stages are never retried within a process.
//
// # Endpoint Resolution
//
// Connections between modules reference endpoints by name or by index.
// Numeric references pass through unchanged. Named references resolve
// through the backend: Sancus reads toolchain-emitted symbols from the
// linked binary, TrustZone looks the name up in the descriptor's
// endpoint maps.
//
// # External Tools
//
// The Sancus backend shells out to sancus-cc, sancus-ld, sancus-crypto
// and msp430-ld. The TrustZone backend drives the OP-TEE dev kit through
// make. All invocations run through the cmdutils.Runner of the module
// environment, which tests replace with a scripted fake.
package modules
