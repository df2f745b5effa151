package build

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/lambdad/internal/envvars"
)

const (

	// Memory size in MB of functions that do not set one.
	DefaultMemorySize = 128

	// Timeout in seconds of functions that do not set one.
	DefaultTimeout = 3
)

// A buildable function.
type Function struct {
	Name        string         `yaml:"name" json:"name"`                                   // Logical function name.
	Runtime     string         `yaml:"runtime" json:"runtime"`                             // Runtime identifier, e.g. "python3.7".
	CodeURI     string         `yaml:"code_uri" json:"code_uri"`                           // Source directory, relative to the project.
	Handler     string         `yaml:"handler" json:"handler"`                             // Entry point of the function.
	MemorySize  int            `yaml:"memory_size,omitempty" json:"memory_size,omitempty"` // Memory in MB.
	Timeout     int            `yaml:"timeout,omitempty" json:"timeout,omitempty"`         // Timeout in seconds.
	Environment map[string]any `yaml:"environment,omitempty" json:"environment,omitempty"` // Declared variables with defaults.
}

// Functions of a project.
type Inventory struct {
	Dir       string     `yaml:"-" json:"dir"`             // Project directory, for relative code URIs.
	Functions []Function `yaml:"functions" json:"functions"` // Functions in build order.
}

// Reads an inventory file. The project directory is the file's directory.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInventory, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	return ParseInventory(data, dir)
}

// Parses an inventory document rooted at dir.
func ParseInventory(data []byte, dir string) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInventory, err)
	}
	inv.Dir = dir

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Checks that every function is buildable and names are unique.
func (inv *Inventory) Validate() error {
	seen := make(map[string]bool, len(inv.Functions))
	for i, fn := range inv.Functions {
		switch {
		case fn.Name == "":
			return fmt.Errorf("%w: function %d has no name", ErrInvalidInventory, i+1)
		case seen[fn.Name]:
			return fmt.Errorf("%w: duplicate function %s", ErrInvalidInventory, fn.Name)
		case fn.Runtime == "":
			return fmt.Errorf("%w: function %s has no runtime", ErrInvalidInventory, fn.Name)
		case fn.CodeURI == "":
			return fmt.Errorf("%w: function %s has no code_uri", ErrInvalidInventory, fn.Name)
		}
		seen[fn.Name] = true
	}
	return nil
}

// Returns the named function.
func (inv *Inventory) Lookup(name string) (Function, error) {
	for _, fn := range inv.Functions {
		if fn.Name == name {
			return fn, nil
		}
	}
	return Function{}, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
}

// Returns the functions to build: all of them for an empty target, or the
// single named one.
func (inv *Inventory) Select(target string) ([]Function, error) {
	if target == "" {
		return inv.Functions, nil
	}
	fn, err := inv.Lookup(target)
	if err != nil {
		return nil, err
	}
	return []Function{fn}, nil
}

// Returns the absolute source directory of fn.
func (fn Function) CodeDir(projectDir string) string {
	if filepath.IsAbs(fn.CodeURI) {
		return filepath.Clean(fn.CodeURI)
	}
	return filepath.Join(projectDir, fn.CodeURI)
}

// Returns the environment resolver input for emulating fn.
//
// Memory and timeout fall back to the service defaults.
func (fn Function) EnvInput(shell map[string]string, overrides envvars.Overrides, creds envvars.Credentials) envvars.Input {
	memory := fn.MemorySize
	if memory == 0 {
		memory = DefaultMemorySize
	}
	timeout := fn.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return envvars.Input{
		Declared:    fn.Environment,
		Shell:       shell,
		Overrides:   overrides.For(fn.Name),
		Credentials: creds,
		Memory:      memory,
		Timeout:     timeout,
		Handler:     fn.Handler,
	}
}
