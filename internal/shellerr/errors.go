// Package shellerr defines the error kinds reported by the command shell.
package shellerr

import (
	"errors"
	"fmt"
)

// Kind classifies a shell error.
type Kind int

const (
	CommandError Kind = iota
	DefinitionSyntaxError
	MissingArgumentError
	TypeCoercionError
	InvalidChoiceError
	PathResolutionError
	NotFoundError
	FilterCardinalityError
	UnmappedKeyError
	TimeoutError
	SchedulingError
	ScriptSyntaxError
	UnknownCommandError
	UnrecognizedArgumentError
)

var kindNames = map[Kind]string{
	CommandError:              "CommandError",
	DefinitionSyntaxError:     "DefinitionSyntaxError",
	MissingArgumentError:      "MissingArgumentError",
	TypeCoercionError:         "TypeCoercionError",
	InvalidChoiceError:        "InvalidChoiceError",
	PathResolutionError:       "PathResolutionError",
	NotFoundError:             "NotFoundError",
	FilterCardinalityError:    "FilterCardinalityError",
	UnmappedKeyError:          "UnmappedKeyError",
	TimeoutError:              "TimeoutError",
	SchedulingError:           "SchedulingError",
	ScriptSyntaxError:         "ScriptSyntaxError",
	UnknownCommandError:       "UnknownCommandError",
	UnrecognizedArgumentError: "UnrecognizedArgumentError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified shell error. Command is the command that raised it,
// if known.
type Error struct {
	Kind    Kind
	Command string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Command != "" {
		return e.Command + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithCommand returns a copy of e attributed to the named command.
func (e *Error) WithCommand(name string) *Error {
	c := *e
	c.Command = name
	return &c
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Err
	}
	return false
}

// KindOf returns the kind of the outermost shell error in err's chain, or
// CommandError when err is not classified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return CommandError
}

// Attribute sets the command name on the outermost shell error if none is set.
// Unclassified errors are wrapped as CommandError.
func Attribute(err error, command string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Command == "" {
			se.Command = command
		}
		return err
	}
	return &Error{Kind: CommandError, Command: command, Err: err}
}
