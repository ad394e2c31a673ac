package harness

import (
	"fmt"
	"reflect"
)

// evalAssertion checks one Assertion against result, recording a
// failure on result if the assertion doesn't hold.
func evalAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertQueryResultCount:
		rows, err := queryRows(result, a.Step, a.Entity)
		if err != nil {
			return err
		}
		if len(rows) != a.Count {
			return fmt.Errorf("%s.%s: expected %d rows, got %d", a.Step, a.Entity, a.Count, len(rows))
		}
		return nil

	case AssertQueryResultEmpty:
		rows, err := queryRows(result, a.Step, a.Entity)
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			return fmt.Errorf("%s.%s: expected no rows, got %d", a.Step, a.Entity, len(rows))
		}
		return nil

	case AssertQueryFieldEquals:
		rows, err := queryRows(result, a.Step, a.Entity)
		if err != nil {
			return err
		}
		if a.Index >= len(rows) {
			return fmt.Errorf("%s.%s: row index %d out of range (%d rows)", a.Step, a.Entity, a.Index, len(rows))
		}
		got := rows[a.Index][a.Field]
		if !reflect.DeepEqual(got, a.Equals) {
			return fmt.Errorf("%s.%s[%d].%s: expected %v, got %v", a.Step, a.Entity, a.Index, a.Field, a.Equals, got)
		}
		return nil

	case AssertStepSucceeded:
		outcome, ok := result.Named[a.Step]
		if !ok {
			return fmt.Errorf("no step labeled %q", a.Step)
		}
		if outcome.Err != nil {
			return fmt.Errorf("step %q failed: %v", a.Step, outcome.Err)
		}
		return nil

	case AssertStepFailed:
		outcome, ok := result.Named[a.Step]
		if !ok {
			return fmt.Errorf("no step labeled %q", a.Step)
		}
		if outcome.Err == nil {
			return fmt.Errorf("step %q: expected an error, got none", a.Step)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// queryRows resolves a query step's recorded result for one entity
// alias into its row slice.
func queryRows(result *Result, step, entity string) ([]map[string]any, error) {
	outcome, ok := result.Named[step]
	if !ok {
		return nil, fmt.Errorf("no step labeled %q", step)
	}
	if outcome.Err != nil {
		return nil, fmt.Errorf("step %q failed: %w", step, outcome.Err)
	}
	value, ok := outcome.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("step %q did not produce a query result", step)
	}
	rowsAny, ok := value[entity]
	if !ok {
		return nil, fmt.Errorf("step %q: no selection for entity %q", step, entity)
	}
	rows, ok := rowsAny.([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("step %q: selection %q is not a row slice", step, entity)
	}
	return rows, nil
}
