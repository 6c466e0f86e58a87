package interfaces

import (
	"context"
)

// Module is a software module managed through its provisioning lifecycle.
//
// The lifecycle stages Build, Deploy, Attest and Key are memoized: the first
// call starts the stage, concurrent and later calls join the same result,
// and a failed stage stays failed for the lifetime of the module. Loading a
// module from persisted state pre-resolves the stages recorded there.
type Module interface {
	// Name returns the module name, unique within a deployment.
	Name() string

	// Node returns the node this module deploys to.
	Node() Node

	// Priority returns the deployment priority group, if one is set.
	// Modules without a priority deploy after all prioritized ones.
	Priority() (int, bool)

	// Deployed reports whether the module has been deployed to its node.
	Deployed() bool

	// Attested reports whether the module has passed attestation.
	Attested() bool

	// Nonce returns the attestation nonce recorded for the module.
	Nonce() int

	// SupportedEncryption lists the schemes the module can use for
	// authenticated communication.
	SupportedEncryption() []Encryption

	// Build produces the module binary and returns its path.
	Build(ctx context.Context) (string, error)

	// Deploy ships the binary to the node and returns what the node
	// assigned. Implies Build.
	Deploy(ctx context.Context) (DeployInfo, error)

	// Attest proves to the deployer that the deployed module is the
	// expected one. Implies Deploy and, depending on backend, Key.
	Attest(ctx context.Context) error

	// Key returns the module's symmetric key. Implies the stages the
	// backend needs to derive it.
	Key(ctx context.Context) (ModuleKey, error)

	// ID resolves the module ID assigned at deployment.
	ID(ctx context.Context) (int, error)

	// InputID resolves an input reference to its numeric ID. Numeric
	// references are returned as-is without any backend lookup.
	InputID(ctx context.Context, ref EndpointRef) (int, error)

	// OutputID resolves an output reference to its numeric ID. Numeric
	// references are returned as-is without any backend lookup.
	OutputID(ctx context.Context, ref EndpointRef) (int, error)

	// EntryID resolves an entry point reference to its numeric ID. Numeric
	// references are returned as-is without any backend lookup.
	EntryID(ctx context.Context, ref EndpointRef) (int, error)

	// Dump captures the module's persisted form. Results of the build,
	// deploy and key stages are included only when the module is deployed.
	Dump() *ModuleState
}

// ModuleRegistry provides read access to the modules of a deployment.
type ModuleRegistry interface {
	// Modules lists all modules in descriptor order.
	Modules() []Module

	// Module looks a module up by name.
	Module(name string) (Module, error)
}

// ModuleState is the persisted form of a module, one entry of the deployment
// state document. Stage results (Binary, ID, Symtab, Key) are present only
// when the module was deployed at dump time.
type ModuleState struct {
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	Node     string `yaml:"node"`
	Priority *int   `yaml:"priority,omitempty"`
	Deployed bool   `yaml:"deployed"`
	Attested bool   `yaml:"attested"`
	Nonce    int    `yaml:"nonce,omitempty"`

	// Sancus configuration.
	Files       []string `yaml:"files,omitempty"`
	CFlags      []string `yaml:"cflags,omitempty"`
	LDFlags     []string `yaml:"ldflags,omitempty"`
	Connections int      `yaml:"connections,omitempty"`

	// TrustZone configuration. ID doubles as deployment output for Sancus.
	FilesDir    string         `yaml:"files_dir,omitempty"`
	UUID        string         `yaml:"uuid,omitempty"`
	Inputs      map[string]int `yaml:"inputs,omitempty"`
	Outputs     map[string]int `yaml:"outputs,omitempty"`
	Entrypoints map[string]int `yaml:"entrypoints,omitempty"`

	// Stage results, gated on Deployed.
	Binary string `yaml:"binary,omitempty"`
	ID     *int   `yaml:"id,omitempty"`
	Symtab string `yaml:"symtab,omitempty"`
	Key    string `yaml:"key,omitempty"`
}
