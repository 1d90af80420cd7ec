package script

import "fmt"

// ReadError reports a script file that could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read script %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ParseError reports a malformed script document or command.
// Index is the command position, or -1 for document-level errors.
type ParseError struct {
	Path    string
	Index   int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "script"
	}
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s: commands[%d]: %s", where, e.Index, msg)
	}
	return fmt.Sprintf("%s: %s", where, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }
