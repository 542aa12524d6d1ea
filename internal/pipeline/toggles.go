package pipeline

import (
	"encoding/json"
	"os"
)

// togglesFile mirrors <workspace>/toggles.json. A missing key or value
// true means enabled; only an explicit false disables.
type togglesFile struct {
	Skills map[string]bool `json:"skills"`
	Tools  map[string]bool `json:"tools"`
}

// loadToggles reads the toggles file, returning the sets of explicitly
// disabled tool and skill names. A missing or unreadable file yields empty
// sets (nothing disabled) rather than an error, since the file is optional.
func loadToggles(path string) (disabledTools, disabledSkills map[string]bool) {
	disabledTools = make(map[string]bool)
	disabledSkills = make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return disabledTools, disabledSkills
	}
	var tf togglesFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return disabledTools, disabledSkills
	}
	for name, enabled := range tf.Tools {
		if !enabled {
			disabledTools[name] = true
		}
	}
	for name, enabled := range tf.Skills {
		if !enabled {
			disabledSkills[name] = true
		}
	}
	return disabledTools, disabledSkills
}
