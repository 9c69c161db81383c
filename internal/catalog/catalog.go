package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/townsquare-live/internal/game"
)

var ErrRoleNotFound = errors.New("role not found")

//go:embed roles.yaml
var bundled []byte

// Catalog is an immutable set of roles and fabled keyed by id.
type Catalog struct {
	roles  map[string]game.Role
	fabled map[string]game.Role
	order  []string
}

// Default is the bundled catalog. It panics only if the embedded file is
// broken, which the tests guard against.
func Default() *Catalog {
	c, err := Parse(bundled)
	if err != nil {
		panic(fmt.Sprintf("catalog: bundled roles: %v", err))
	}
	return c
}

// Load reads a role list from a YAML or JSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a list of roles. JSON is accepted since it is valid YAML.
func Parse(data []byte) (*Catalog, error) {
	var list []game.Role
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		roles:  make(map[string]game.Role, len(list)),
		fabled: make(map[string]game.Role),
	}
	for i, r := range list {
		if r.ID == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no id", i)
		}
		if r.Team == game.TeamFabled {
			c.fabled[r.ID] = r
			continue
		}
		if _, dup := c.roles[r.ID]; !dup {
			c.order = append(c.order, r.ID)
		}
		c.roles[r.ID] = r
	}
	return c, nil
}

func (c *Catalog) Role(id string) (game.Role, bool) {
	r, ok := c.roles[id]
	return r, ok
}

func (c *Catalog) Fabled(id string) (game.Role, bool) {
	r, ok := c.fabled[id]
	return r, ok
}

// Lookup is Role with an error for callers that report missing ids.
func (c *Catalog) Lookup(id string) (game.Role, error) {
	if r, ok := c.Role(id); ok {
		return r, nil
	}
	if r, ok := c.Fabled(id); ok {
		return r, nil
	}
	return game.Role{}, fmt.Errorf("%w: %q", ErrRoleNotFound, id)
}

// EditionRoles lists an official edition's roles in catalog order.
func (c *Catalog) EditionRoles(edition string) []game.Role {
	var out []game.Role
	for _, id := range c.order {
		if r := c.roles[id]; r.Edition == edition {
			out = append(out, r)
		}
	}
	return out
}

// Roles lists every non-fabled role in catalog order.
func (c *Catalog) Roles() []game.Role {
	out := make([]game.Role, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.roles[id])
	}
	return out
}

// FabledIDs lists the fabled ids sorted.
func (c *Catalog) FabledIDs() []string {
	out := make([]string, 0, len(c.fabled))
	for id := range c.fabled {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
