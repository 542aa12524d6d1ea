// Package skillrt discovers, hot-reloads, and executes workspace skills:
// self-contained script bundles under <workspace>/skills/<name>/, each
// declaring the capability ids it depends on. Distinct from the teacher's
// internal/skills (a full multi-source skill marketplace out of scope for
// this runtime, kept as in-workspace reference); this package implements
// only the narrower directory layout and hot-reload loop the spec names.
package skillrt

import "time"

// Meta is a skill's meta.yaml descriptor.
type Meta struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// Skill is one discovered, loaded skill bundle.
type Skill struct {
	Meta       Meta
	Dir        string
	DocBody    string // SKILL.md body, if present
	ScriptBody string // SKILL.rhai body, if present
	LoadedAt   time.Time
}

// MissingDependency names a skill whose declared capability dependency is
// not currently present in the tool registry.
type MissingDependency struct {
	SkillName    string
	CapabilityID string
}
