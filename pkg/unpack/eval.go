package unpack

import (
	"errors"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// ErrNothingEvaluated is returned when a script never calls eval.
var ErrNothingEvaluated = errors.New("script produced no eval output")

// evalTimeout bounds how long an untrusted script may run.
const evalTimeout = 2 * time.Second

// Evaluate runs script in a sandboxed JavaScript VM with eval replaced by a
// capture, and returns the code it tried to evaluate. It handles encodings
// the regex unpacker does not know.
func Evaluate(script string) (string, error) {
	vm := goja.New()

	var captured []string
	capture := func(call goja.FunctionCall) goja.Value {
		captured = append(captured, call.Argument(0).String())
		return goja.Undefined()
	}
	if err := vm.Set("eval", capture); err != nil {
		return "", err
	}
	// Player scripts poke at the page; give them something to poke.
	if _, err := vm.RunString(`var window = this, document = {}, navigator = {userAgent: ""};`); err != nil {
		return "", err
	}

	timer := time.AfterFunc(evalTimeout, func() {
		vm.Interrupt("timeout")
	})
	defer timer.Stop()

	_, runErr := vm.RunString(script)
	if len(captured) == 0 {
		if runErr != nil {
			return "", runErr
		}
		return "", ErrNothingEvaluated
	}
	return strings.Join(captured, "\n"), nil
}

// Deobfuscate tries the regex unpacker first and falls back to Evaluate for
// scripts that still call eval.
func Deobfuscate(script string) string {
	if IsPacked(script) {
		if u := Unpack(script); u != script {
			return u
		}
	}
	if !strings.Contains(script, "eval(") {
		return script
	}
	if out, err := Evaluate(script); err == nil {
		return out
	}
	return script
}
