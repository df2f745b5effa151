package envvars

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"

	"github.com/tidwall/jsonc"
)

// Section of an env-vars file that applies to every function.
const GlobalSection = "Parameters"

// Override values read from an env-vars file, keyed by section.
type Overrides map[string]map[string]any

// Reads an env-vars file.
//
// The file is a JSON object, comments and trailing commas allowed, whose
// keys are function names or [GlobalSection] and whose values are objects
// of variable overrides.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadOverrides, err)
	}
	return ParseOverrides(data)
}

// Parses the contents of an env-vars file.
func ParseOverrides(data []byte) (Overrides, error) {
	// Numbers keep their written form, so 30 stays "30" and 1.0 stays "1.0".
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOverrides, err)
	}

	overrides := make(Overrides, len(raw))
	for section, value := range raw {
		vars, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: section %q must be an object", ErrInvalidOverrides, section)
		}
		overrides[section] = vars
	}

	return overrides, nil
}

// Returns the overrides for one function. Function-specific values win over
// the global section.
func (o Overrides) For(function string) map[string]any {
	vars := make(map[string]any)
	maps.Copy(vars, o[GlobalSection])
	maps.Copy(vars, o[function])
	return vars
}
