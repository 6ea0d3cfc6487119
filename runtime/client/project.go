package client

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"

	"github.com/satishbabariya/contentql/query/request"
	"github.com/satishbabariya/contentql/schema"
)

// Project is a loaded model with its role permissions
type Project struct {
	Schema *schema.Schema
	Roles  schema.Roles
}

// ParseProject parses a project document holding the model and the acl section
func ParseProject(data []byte) (*Project, error) {
	s, err := schema.LoadModel(data)
	if err != nil {
		return nil, err
	}
	roles, err := request.DecodeRoles(s, data)
	if err != nil {
		return nil, err
	}
	return &Project{Schema: s, Roles: roles}, nil
}

// LoadProject reads and parses the project file at path
func LoadProject(fs afero.Fs, path string) (*Project, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", path, err)
	}
	p, err := ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	return p, nil
}

// Permissions returns the permission set of role
func (p *Project) Permissions(role string) (schema.Permissions, error) {
	perms, ok := p.Roles[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return perms, nil
}

// RoleNames returns role names in sorted order
func (p *Project) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for name := range p.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
