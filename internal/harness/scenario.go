package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
)

// Scenario is one scripted run of a loopback board and the checks applied
// to it.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Board configures the circuit and peripherals.
	Board board.Config `yaml:"board,omitempty"`

	// Script is a path to a script file, relative to the scenario file.
	// Exactly one of Script and Commands is set.
	Script string `yaml:"script,omitempty"`

	// Commands is an inline script in document form.
	Commands []any `yaml:"commands,omitempty"`

	// MaxTicks bounds the run.
	MaxTicks uint64 `yaml:"max_ticks"`

	// StopWhenDone ends the run once every command has been consumed.
	StopWhenDone bool `yaml:"stop_when_done,omitempty"`

	// ExpectError names the error code the run must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions"`

	dir string
}

// Dir is the directory relative paths are resolved against.
func (s *Scenario) Dir() string { return s.dir }

// SetDir changes the directory relative paths are resolved against.
func (s *Scenario) SetDir(dir string) { s.dir = dir }

func (s *Scenario) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	if err := validateFiles(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes a scenario held in memory and checks required
// fields. Referenced files are not checked.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxTicks == 0 {
		return fmt.Errorf("max_ticks is required and must be positive")
	}

	switch {
	case s.Script == "" && s.Commands == nil:
		return fmt.Errorf("script or commands is required")
	case s.Script != "" && s.Commands != nil:
		return fmt.Errorf("script and commands are mutually exclusive")
	}

	if err := s.Board.Validate(); err != nil {
		return fmt.Errorf("board: %w", err)
	}

	if s.ExpectError != "" {
		if _, ok := engine.ParseErrorCode(s.ExpectError); !ok {
			return fmt.Errorf("expect_error: unknown error code %q", s.ExpectError)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateFiles(s *Scenario) error {
	if s.Script != "" {
		if _, err := os.Stat(s.resolve(s.Script)); os.IsNotExist(err) {
			return fmt.Errorf("script file not found: %s", s.Script)
		}
	}
	if img := s.Board.Flash.Image; img != "" {
		if _, err := os.Stat(s.resolve(img)); os.IsNotExist(err) {
			return fmt.Errorf("flash image not found: %s", img)
		}
	}
	return nil
}
