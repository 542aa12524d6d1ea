package skillrt

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	metaFilename   = "meta.yaml"
	docFilename    = "SKILL.md"
	scriptFilename = "SKILL.rhai"
)

// loadSkillDir parses one skill bundle directory. meta.yaml is required;
// SKILL.md and SKILL.rhai are both optional (a skill may be documentation
// only, script only, or both).
func loadSkillDir(dir string) (*Skill, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, metaFilename))
	if err != nil {
		return nil, fmt.Errorf("skillrt: read %s: %w", metaFilename, err)
	}
	var meta Meta
	if err := yaml.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("skillrt: parse %s: %w", metaFilename, err)
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(dir)
	}

	skill := &Skill{Meta: meta, Dir: dir, LoadedAt: time.Now()}
	if doc, err := os.ReadFile(filepath.Join(dir, docFilename)); err == nil {
		skill.DocBody = string(doc)
	}
	if script, err := os.ReadFile(filepath.Join(dir, scriptFilename)); err == nil {
		skill.ScriptBody = string(script)
	}
	return skill, nil
}

// discoverSkills scans root for immediate subdirectories containing a
// meta.yaml, skipping (and logging via the returned errs slice) any that
// fail to parse rather than aborting the whole scan.
func discoverSkills(root string) (map[string]*Skill, []error) {
	skills := make(map[string]*Skill)
	entries, err := os.ReadDir(root)
	if err != nil {
		return skills, []error{fmt.Errorf("skillrt: read skills dir %s: %w", root, err)}
	}
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, metaFilename)); err != nil {
			continue
		}
		skill, err := loadSkillDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		skills[skill.Meta.Name] = skill
	}
	return skills, errs
}
