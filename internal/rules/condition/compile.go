package condition

import (
	"sync"

	"github.com/google/cel-go/cel"

	dErrors "conforma/pkg/domain-errors"
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error

	// programCache is process-wide: ruleset content is immutable after
	// activation, so a compiled program for a given canonical expression
	// never goes stale.
	programCache sync.Map // canonical JSON -> cel.Program
)

func sharedEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(envOptions()...)
	})
	if envErr != nil {
		return nil, dErrors.Wrap(envErr, dErrors.CodeInternal, "build condition environment")
	}
	return env, nil
}

// Compiled pairs a validated expression with its compiled program.
type Compiled struct {
	Expr    *Expr
	program cel.Program
}

// Compile validates and compiles a stored condition document. All failures
// carry CodeInvalidRule: they are ruleset authoring faults, caught once at
// load time.
func Compile(raw []byte) (*Compiled, error) {
	expr, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	key := expr.Canonical()
	if cached, ok := programCache.Load(key); ok {
		return &Compiled{Expr: expr, program: cached.(cel.Program)}, nil
	}

	e, err := sharedEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := e.Compile(expr.celSource())
	if issues != nil && issues.Err() != nil {
		return nil, dErrors.Wrap(issues.Err(), dErrors.CodeInvalidRule, "condition does not compile")
	}
	if ast.OutputType() != cel.BoolType {
		return nil, dErrors.New(dErrors.CodeInvalidRule, "condition must evaluate to a boolean")
	}

	program, err := e.Program(ast)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidRule, "condition program construction failed")
	}
	programCache.Store(key, program)
	return &Compiled{Expr: expr, program: program}, nil
}

// Evaluate runs the condition against the profile attribute map. The
// explanation is produced on both outcomes; the engine persists it only for
// matches.
func (c *Compiled) Evaluate(attrs map[string]any) (bool, string, error) {
	out, _, err := c.program.Eval(attrs)
	if err != nil {
		return false, "", dErrors.Wrap(err, dErrors.CodeInternal, "condition evaluation failed")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, "", dErrors.New(dErrors.CodeInternal, "condition evaluated to a non-boolean")
	}
	return matched, c.Expr.Explain(attrs), nil
}
