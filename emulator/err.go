package emulator

import (
	"errors"

	"github.com/ezrec/chip8/translate"
)

var f = translate.From

var (
	ErrCycleLimit = errors.New(f("cycle limit exceeded"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	LineNo int
	Err    error
}

func (err *ErrRuntime) Error() string {
	return f("line %d %v", err.LineNo, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
