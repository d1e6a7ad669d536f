package netbus

import "github.com/specialistvlad/netbus/internal/router"

// Operation is a declared handle. It is implemented by Event and Function.
type Operation interface {
	Name() string
	isFunction() bool
}

// Event describes a fire-and-forget operation whose argument is a T.
type Event[T any] struct {
	name string
}

// NewEvent declares an event named name.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{name: name}
}

// Name returns the handle of the event.
func (e Event[T]) Name() string { return e.name }

func (Event[T]) isFunction() bool { return false }

// Function describes a call that takes a Req and answers with a Resp.
type Function[Req, Resp any] struct {
	name string
}

// NewFunction declares a function named name.
func NewFunction[Req, Resp any](name string) Function[Req, Resp] {
	return Function[Req, Resp]{name: name}
}

// Name returns the handle of the function.
func (f Function[Req, Resp]) Name() string { return f.name }

func (Function[Req, Resp]) isFunction() bool { return true }

// Contract is the set of incoming operations one side accepts.
type Contract = router.Contract

// Declare builds the contract of the operations a side accepts.
func Declare(ops ...Operation) Contract {
	var events, functions []string
	for _, op := range ops {
		if op.isFunction() {
			functions = append(functions, op.Name())
		} else {
			events = append(events, op.Name())
		}
	}
	return router.NewContract(events, functions)
}
