package v1

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// compileBugFilter compiles a CEL filter expression over bug report fields and
// returns a predicate. Supported variables: status, title, display_id,
// application_id, reporter_id.
func compileBugFilter(filter string) (func(*store.BugReport) (bool, error), error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("display_id", cel.StringType),
		cel.Variable("application_id", cel.IntType),
		cel.Variable("reporter_id", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter environment")
	}

	celAST, issues := env.Compile(filter)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid filter expression: %s", filter)
	}
	if celAST.OutputType() != cel.BoolType {
		return nil, errors.Errorf("filter must evaluate to a boolean, got %s", celAST.OutputType())
	}

	program, err := env.Program(celAST)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}

	return func(bug *store.BugReport) (bool, error) {
		out, _, err := program.Eval(map[string]any{
			"status":         string(bug.Status),
			"title":          bug.Title,
			"display_id":     bug.UID,
			"application_id": int64(bug.ApplicationID),
			"reporter_id":    int64(bug.ReporterID),
		})
		if err != nil {
			return false, errors.Wrap(err, "failed to evaluate filter")
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return false, errors.New("filter did not evaluate to a boolean")
		}
		return matched, nil
	}, nil
}
