package chatsvc

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/event"
)

// celFilter wraps a compiled CEL program shared by polling and streaming.
// When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("text", cel.StringType),
		// "" for system events
		cel.Variable("author", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, errs.With(errs.ErrInvalidFilter, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, errs.With(errs.ErrInvalidFilter, iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return celFilter{}, errs.Validation(errs.ErrInvalidFilter.Code, "Filter must evaluate to a boolean")
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, errs.With(errs.ErrInvalidFilter, err)
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression against ev. Evaluation errors drop the event.
func (f celFilter) Eval(ev event.Event) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":     int64(ev.ID),
		"kind":   string(ev.Kind),
		"text":   ev.Text,
		"author": ev.AuthorName(),
		"ts_ms":  ev.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (f celFilter) apply(evs []event.Event) []event.Event {
	if !f.enabled {
		return evs
	}
	out := evs[:0:0]
	for _, ev := range evs {
		if f.Eval(ev) {
			out = append(out, ev)
		}
	}
	return out
}
