package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/crystal-mush/gotinytf/pkg/tf"
	"gopkg.in/yaml.v3"
)

// MacroFile is the on-disk YAML layout for macro definitions:
//
//	vars:
//	  name: Bob
//	macros:
//	  - name: greet
//	    pattern: "* arrives."
//	    body: "wave %1"
//	binds:
//	  F1: "#help"
type MacroFile struct {
	Vars   map[string]string `yaml:"vars,omitempty"`
	Macros []tf.MacroDef      `yaml:"macros"`
	Binds  map[string]string `yaml:"binds,omitempty"`
}

// LoadMacroFile reads and validates a macro file. Every definition must
// convert to a macro, and names must be unique.
func LoadMacroFile(path string) (*MacroFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read macros %s: %w", path, err)
	}
	var mf MacroFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("config: parse macros %s: %w", path, err)
	}

	var errs []error
	seen := make(map[string]bool, len(mf.Macros))
	for _, d := range mf.Macros {
		if _, err := d.Macro(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("macro %s: %w", d.Name, tf.ErrMacroExists))
		}
		seen[d.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: macros %s: %w", path, err)
	}
	return &mf, nil
}
