// Package rules compiles segmentation-rule expressions and caches the
// compiled form per experiment.
//
// Rules are CEL expressions over a user-profile environment and must
// evaluate to bool. The core only compiles and installs rules; evaluation
// belongs to the assignment path, which reads the cache.
package rules

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ErrParse wraps CEL parse and type-check failures.
var ErrParse = errors.New("rule parse failed")

// CompiledRule is a segmentation rule in evaluable form.
type CompiledRule struct {
	source  string
	program cel.Program
}

// Source returns the expression the rule was compiled from.
func (r *CompiledRule) Source() string {
	return r.source
}

// Eligible evaluates the rule against a user profile.
func (r *CompiledRule) Eligible(attrs map[string]any) (bool, error) {
	out, _, err := r.program.Eval(attrs)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval: rule returned %T, want bool", out.Value())
	}
	return b, nil
}

// Compiler turns rule expressions into CompiledRules. Safe for concurrent use.
type Compiler struct {
	env *cel.Env
}

// Option adds declarations to the compiler's environment.
type Option func(*[]cel.EnvOption)

// WithVariable declares an extra identifier usable in rules.
func WithVariable(name string, t *cel.Type) Option {
	return func(opts *[]cel.EnvOption) {
		*opts = append(*opts, cel.Variable(name, t))
	}
}

// NewCompiler builds a compiler over the standard profile environment:
// the common targeting idents plus an open attributes map for everything
// an application records about its users.
func NewCompiler(opts ...Option) (*Compiler, error) {
	envOpts := []cel.EnvOption{
		cel.Variable("country", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("language", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("app_version", cel.StringType),
		cel.Variable("logged_in", cel.BoolType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	}
	for _, opt := range opts {
		opt(&envOpts)
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("build env: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Compile parses and type-checks expr. The expression must produce a bool.
func (c *Compiler) Compile(expr string) (*CompiledRule, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrParse, ast.OutputType())
	}

	prog, err := c.env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return &CompiledRule{source: expr, program: prog}, nil
}
