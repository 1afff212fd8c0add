package config

import (
	"fmt"
	"os"
	"regexp"

	jsoniter "github.com/json-iterator/go"
)

var panelJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Panel is one ticket category a user can open from the panel.
type Panel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// LoadPanels reads and validates the panel definitions file. Malformed
// entries fail the load outright rather than surfacing as zero values at
// use sites.
func LoadPanels(path string) ([]Panel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No panel file means no self-service categories; admission
			// requests must then name a known category explicitly.
			return nil, nil
		}
		return nil, err
	}

	var panels []Panel
	if err := panelJSON.Unmarshal(raw, &panels); err != nil {
		return nil, fmt.Errorf("parse panels: %w", err)
	}

	seen := make(map[string]struct{}, len(panels))
	for i, panel := range panels {
		if panel.Name == "" {
			return nil, fmt.Errorf("panel %d: name is required", i)
		}
		if _, dup := seen[panel.Name]; dup {
			return nil, fmt.Errorf("panel %d: duplicate name %q", i, panel.Name)
		}
		seen[panel.Name] = struct{}{}
		if panel.Color != "" && !colorPattern.MatchString(panel.Color) {
			return nil, fmt.Errorf("panel %q: color %q is not #RRGGBB", panel.Name, panel.Color)
		}
	}
	return panels, nil
}

// PanelByName finds a configured panel, or nil when unknown.
func (c *Config) PanelByName(name string) *Panel {
	for i := range c.Panels {
		if c.Panels[i].Name == name {
			return &c.Panels[i]
		}
	}
	return nil
}
