package deployment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptorYAML = `
attestation_manager:
  host: 10.0.0.5
  port: 6000
  key: deadbeefdeadbeefdeadbeefdeadbeef
nodes:
  - type: sancus
    name: node1
    host: 10.0.0.7
    reactive_port: 6100
    vendor_key: 4078d505d82099ba5e1bfbf7d0bedade
  - type: trustzone
    name: node2
    host: 10.0.0.9
    reactive_port: 6100
    node_key: 0102030405060708090a0b0c0d0e0f10
modules:
  - type: sancus
    name: sm1
    node: node1
    priority: 1
    files: [sm1/main.c, sm1/util.c]
    ldflags: ["--standalone"]
    connections: 2
  - type: trustzone
    name: ta1
    node: node2
    files_dir: tas
    uuid: 7e41b2c0-91f4-4a62-8f3d-5a10a2b4c8d1
    id: 2
    inputs: {button: 0}
    outputs: {led: 1}
    entrypoints: {init: 1}
`

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor([]byte(descriptorYAML))
	require.NoError(t, err)

	require.NotNil(t, desc.AttestationManager)
	assert.Equal(t, "10.0.0.5", desc.AttestationManager.Host)
	assert.Equal(t, 6000, desc.AttestationManager.Port)

	require.Len(t, desc.Nodes, 2)
	assert.Equal(t, "node1", desc.Nodes[0].Name)
	assert.Equal(t, "sancus", desc.Nodes[0].Type)
	assert.Equal(t, 6100, desc.Nodes[1].ReactivePort)

	require.Len(t, desc.Modules, 2)
	require.NotNil(t, desc.Modules[0].Priority)
	assert.Equal(t, 1, *desc.Modules[0].Priority)
	assert.Equal(t, []string{"sm1/main.c", "sm1/util.c"}, desc.Modules[0].Files)
	assert.Equal(t, 2, desc.Modules[0].Connections)
	assert.Equal(t, map[string]int{"button": 0}, desc.Modules[1].Inputs)
	assert.Equal(t, map[string]int{"init": 1}, desc.Modules[1].Entrypoints)
}

func TestParseDescriptorRejectsBrokenDocuments(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "not yaml",
			yaml: "nodes: [}",
		},
		{
			name: "node without a name",
			yaml: "nodes:\n  - type: sancus\n    host: localhost\n",
		},
		{
			name: "module without a name",
			yaml: "modules:\n  - type: sancus\n    node: node1\n",
		},
		{
			name: "duplicate module",
			yaml: "modules:\n  - {type: sancus, name: sm1, node: node1}\n  - {type: sancus, name: sm1, node: node1}\n",
		},
		{
			name: "module without a node",
			yaml: "modules:\n  - {type: sancus, name: sm1}\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadDescriptorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(descriptorYAML), 0o644))

	desc, err := LoadDescriptorFile(path)
	require.NoError(t, err)
	assert.Len(t, desc.Modules, 2)

	_, err = LoadDescriptorFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDescriptorRoundTrip(t *testing.T) {
	desc, err := ParseDescriptor([]byte(descriptorYAML))
	require.NoError(t, err)

	data, err := desc.Marshal()
	require.NoError(t, err)

	again, err := ParseDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, desc, again)
}
