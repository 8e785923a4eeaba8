// Package jsengine evaluates user-supplied JavaScript predicates against the
// state of the screen after login.
package jsengine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// DefaultEvalTimeout bounds a single script evaluation.
const DefaultEvalTimeout = 5 * time.Second

// ErrEvalTimeout is returned when a script runs past its deadline.
var ErrEvalTimeout = errors.New("script evaluation timed out")

// Engine wraps a goja runtime.
type Engine struct {
	runtime *goja.Runtime
	output  map[string]interface{}
	timeout time.Duration
	mu      sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime: goja.New(),
		output:  make(map[string]interface{}),
		timeout: DefaultEvalTimeout,
	}

	e.setupBuiltins()
	return e
}

// SetTimeout changes the per-evaluation deadline. 0 disables it.
func (e *Engine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()

	// json(str) parses a JSON string
	e.runtime.Set("json", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", call.Arguments[0].String()))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	})

	// Values scripts want to hand back to the report
	e.runtime.Set("output", e.output)
}

// setupConsole routes console.log/warn/error into the run log.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			log("js: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Eval evaluates a JavaScript expression and returns the exported result.
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, err := e.run(script)
	if err != nil {
		return nil, err
	}
	return value.Export(), nil
}

// EvalBool evaluates a JavaScript expression using JS truthiness.
func (e *Engine) EvalBool(script string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, err := e.run(script)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	return value.ToBoolean(), nil
}

// run must be called with mu held.
func (e *Engine) run(script string) (goja.Value, error) {
	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			e.runtime.Interrupt(ErrEvalTimeout)
		})
		defer func() {
			timer.Stop()
			e.runtime.ClearInterrupt()
		}()
	}

	value, err := e.runtime.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, ErrEvalTimeout
		}
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return value, nil
}

// GetOutput returns a copy of the output object (values set by scripts)
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	var source map[string]interface{}
	if outputVal := e.runtime.Get("output"); outputVal != nil && !goja.IsUndefined(outputVal) {
		if m, ok := outputVal.Export().(map[string]interface{}); ok {
			source = m
		}
	}
	if source == nil {
		source = e.output
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}
