package tools

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrInvalidPayload = errors.New("invalid tool payload")
	ErrToolExecution  = errors.New("tool execution failed")
)

// Result: явный Ok/Err результат вызова инструмента.
// Ошибки инструментов не прерывают ход оркестратора, а превращаются в строку через String().
type Result struct {
	Tool   string
	Output string
	Err    error
}

func Ok(tool, output string) Result {
	return Result{Tool: tool, Output: output}
}

func Fail(tool string, err error) Result {
	return Result{Tool: tool, Err: err}
}

func (r Result) IsOk() bool { return r.Err == nil }

// String: то, что попадает в историю диалога.
func (r Result) String() string {
	switch {
	case r.Err == nil:
		return r.Output
	case errors.Is(r.Err, ErrToolNotFound):
		return fmt.Sprintf("Error: Tool '%s' not found.", r.Tool)
	case errors.Is(r.Err, ErrInvalidPayload):
		return fmt.Sprintf("Error: Tool '%s' rejected payload: %v", r.Tool, r.Err)
	default:
		return fmt.Sprintf("Error executing tool '%s': %v", r.Tool, r.Err)
	}
}
