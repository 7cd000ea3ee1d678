// Package templates holds the identity prompt catalog agents are created
// from.
package templates

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

const defaultPersonality = "Friendly and helpful."

type Cron struct {
	Label    string `yaml:"label" json:"label"`
	Schedule string `yaml:"schedule" json:"schedule"`
	Message  string `yaml:"message" json:"message"`
}

type Template struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Emoji          string `yaml:"emoji" json:"emoji"`
	Description    string `yaml:"description" json:"description"`
	Identity       string `yaml:"identity" json:"-"`
	DefaultRules   string `yaml:"default_rules" json:"default_rules"`
	SuggestedCrons []Cron `yaml:"suggested_crons" json:"suggested_crons,omitempty"`
}

// Vars fills a template's placeholders.
type Vars struct {
	Name        string
	UserName    string
	Personality string
	Rules       string
}

type Catalog struct {
	byID  map[string]Template
	order []string
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

func Parse(data []byte) (*Catalog, error) {
	var list []Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]Template, len(list))}
	for _, t := range list {
		if t.ID == "" || t.Identity == "" {
			return nil, fmt.Errorf("template %q: id and identity are required", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// MustLoad panics if the embedded catalog is invalid.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// List returns templates in catalog order.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted template ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Render substitutes every placeholder. An empty personality or rules falls
// back to the defaults.
func (c *Catalog) Render(id string, v Vars) (string, error) {
	t, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown template: %s", id)
	}
	personality := v.Personality
	if strings.TrimSpace(personality) == "" {
		personality = defaultPersonality
	}
	rules := v.Rules
	if strings.TrimSpace(rules) == "" {
		rules = t.DefaultRules
	}
	r := strings.NewReplacer(
		"{{name}}", v.Name,
		"{{user_name}}", v.UserName,
		"{{personality}}", personality,
		"{{rules}}", rules,
	)
	return r.Replace(t.Identity), nil
}
