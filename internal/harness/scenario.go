package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a data model, a set of
// named peers, a flow of actions against real meshroom machinery, and
// assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the data-model DSL source every peer's registry is built
	// from, on top of internal/auth.SystemSchema.
	Model string `yaml:"model"`

	// Peers lists the named peers this scenario provisions. Each gets
	// its own on-disk store file and a signing identity deterministically
	// derived from its name.
	Peers []PeerSpec `yaml:"peers"`

	// Flow is the ordered sequence of actions to execute.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// PeerSpec names one participant in the scenario.
type PeerSpec struct {
	Name string `yaml:"name"`
}

// Step is one flow action. Which fields apply depends on Action:
//
//   - private_room: Peer creates and joins a new Room. `as` binds its id.
//   - invite: Peer (an admin of Room) produces a token for Role. `as`
//     binds the token string.
//   - accept: Peer redeems the named Token, admitted by Admin.
//   - mutate: Peer applies DSL/Params in Room. `as` binds the assigned
//     row ids (map[string]string).
//   - delete: Peer applies a deletion DSL/Params in Room.
//   - query: Peer runs DSL/Params in Room. `as` binds the result
//     (map[string]any keyed by selection alias).
//   - sync: runs three reconciliation rounds for Room between the two
//     peers named in Between, in both directions until idle.
type Step struct {
	Action string `yaml:"action"`

	Peer  string `yaml:"peer,omitempty"`
	Room  string `yaml:"room,omitempty"`
	DSL   string `yaml:"dsl,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	Role    string `yaml:"role,omitempty"`
	Admin   string `yaml:"admin,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Between []string `yaml:"between,omitempty"`

	// As labels this step's outcome for later reference by assertions.
	// A room-creating or accept step also binds the room id under this
	// label for later steps' `room:`, and an invite step binds its token
	// for a later accept step's `token:`. Step params are not
	// interpolated from earlier outcomes.
	As string `yaml:"as,omitempty"`

	// ExpectError, if set, is a substring the step's error must
	// contain; the scenario fails if the step instead succeeds or
	// fails with a different message.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the scenario's final outcome.
type Assertion struct {
	// Type is one of: query_result_count, query_field_equals,
	// query_result_empty, step_failed, step_succeeded.
	Type string `yaml:"type"`

	Step   string `yaml:"step,omitempty"`
	Entity string `yaml:"entity,omitempty"`
	Index  int    `yaml:"index,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Equals any    `yaml:"equals,omitempty"`
	Count  int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertQueryResultCount = "query_result_count"
	AssertQueryFieldEquals = "query_field_equals"
	AssertQueryResultEmpty = "query_result_empty"
	AssertStepFailed       = "step_failed"
	AssertStepSucceeded    = "step_succeeded"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(s.Peers) == 0 {
		return fmt.Errorf("peers list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, step := range s.Flow {
		if step.Action == "" {
			return fmt.Errorf("flow[%d]: action is required", i)
		}
	}
	for i, a := range s.Assertions {
		if a.Type == "" {
			return fmt.Errorf("assertions[%d]: type is required", i)
		}
	}
	return nil
}
