package permission

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type policyDocument struct {
	Roles []RoleDef `yaml:"roles"`
}

// LoadPolicyYAML decodes a policy document of the form
//
//	roles:
//	  - name: viewer
//	    level: 10
//	    permissions: [deals:read]
//
// and builds a [Policy] from it. Unknown fields are rejected.
func LoadPolicyYAML(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc policyDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return NewPolicy(doc.Roles)
}

// LoadPolicyFile reads a YAML policy from path.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadPolicyYAML(f)
}
