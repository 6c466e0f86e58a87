package deployment

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ruteri/tee-module-provisioner/attestation"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// Descriptor is the deployment document: the node set, the module set and
// optionally the attestation manager coordinates. Persisted state uses the
// same shape with the stage-result fields filled in, so a run reads one
// document and writes the updated one back.
type Descriptor struct {
	AttestationManager *attestation.Config       `yaml:"attestation_manager,omitempty"`
	Nodes              []*interfaces.NodeState   `yaml:"nodes"`
	Modules            []*interfaces.ModuleState `yaml:"modules"`
}

// ParseDescriptor parses a YAML deployment descriptor. Name references are
// checked here; everything type-specific is left to Load, which knows the
// backends.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}

	for _, node := range desc.Nodes {
		if node.Name == "" {
			return nil, fmt.Errorf("descriptor contains a node without a name")
		}
	}

	seen := make(map[string]bool, len(desc.Modules))
	for _, module := range desc.Modules {
		if module.Name == "" {
			return nil, fmt.Errorf("descriptor contains a module without a name")
		}
		if seen[module.Name] {
			return nil, fmt.Errorf("duplicate module %s", module.Name)
		}
		seen[module.Name] = true

		if module.Node == "" {
			return nil, fmt.Errorf("module %s references no node", module.Name)
		}
	}

	return &desc, nil
}

// LoadDescriptorFile reads and parses a deployment descriptor file.
func LoadDescriptorFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}
	return ParseDescriptor(data)
}

// Marshal renders the descriptor back to YAML.
func (d *Descriptor) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	return data, nil
}
