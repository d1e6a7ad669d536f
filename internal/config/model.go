package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultInvokeTimeout applies when the configuration does not set
// invoke_timeout.
const DefaultInvokeTimeout = 10 * time.Second

// Step kinds.
const (
	StepEmit      = "emit"
	StepBroadcast = "broadcast"
	StepInvoke    = "invoke"
)

// Reply modes of a server function.
const (
	ReplyEcho = "echo"
	ReplyPeer = "peer"
)

// Model is the unified representation of one process configuration.
type Model struct {
	Codec         string
	InvokeTimeout time.Duration
	Verbose       bool

	Server *Server
	Client *Client
}

// Server is the server side of a boundary.
type Server struct {
	Listen    string
	Events    []*Event
	Functions []*Function
}

// Event is an incoming event the server accepts.
type Event struct {
	Name        string
	Rebroadcast bool
}

// Function is an incoming function the server answers.
type Function struct {
	Name  string
	Reply string
}

// Client is the client side of a boundary.
type Client struct {
	URL                string
	Namespace          string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	Listen             []string
	Steps              []*Step
}

// Step is one action a client performs after connecting.
type Step struct {
	Kind   string
	Handle string
	// Args is the JSON encoding of the evaluated arguments.
	Args []byte
}

// Validate checks the model for internal consistency.
func (m *Model) Validate() error {
	var errs []error
	switch {
	case m.Server == nil && m.Client == nil:
		errs = append(errs, errors.New("configuration needs either a server or a client block"))
	case m.Server != nil && m.Client != nil:
		errs = append(errs, errors.New("configuration may not have both a server and a client block"))
	}
	if m.InvokeTimeout < 0 {
		errs = append(errs, fmt.Errorf("invoke_timeout must not be negative, got %s", m.InvokeTimeout))
	}

	if s := m.Server; s != nil {
		if s.Listen == "" {
			errs = append(errs, errors.New("server: listen is required"))
		}
		seen := make(map[string]struct{})
		for _, e := range s.Events {
			errs = appendDuplicate(errs, seen, "event", e.Name)
		}
		for _, f := range s.Functions {
			errs = appendDuplicate(errs, seen, "function", f.Name)
			if f.Reply != ReplyEcho && f.Reply != ReplyPeer {
				errs = append(errs, fmt.Errorf("server: function %q: reply must be %q or %q, got %q", f.Name, ReplyEcho, ReplyPeer, f.Reply))
			}
		}
	}

	if c := m.Client; c != nil {
		if c.URL == "" {
			errs = append(errs, errors.New("client: url is required"))
		}
		seen := make(map[string]struct{})
		for _, name := range c.Listen {
			errs = appendDuplicate(errs, seen, "listen", name)
		}
		for i, s := range c.Steps {
			switch s.Kind {
			case StepEmit, StepBroadcast, StepInvoke:
			default:
				errs = append(errs, fmt.Errorf("client: step #%d: unknown kind %q: must be %q, %q or %q", i, s.Kind, StepEmit, StepBroadcast, StepInvoke))
			}
			if s.Handle == "" {
				errs = append(errs, fmt.Errorf("client: step #%d: handle is empty", i))
			}
		}
	}
	return errors.Join(errs...)
}

func appendDuplicate(errs []error, seen map[string]struct{}, what, name string) []error {
	if name == "" {
		return append(errs, fmt.Errorf("%s name is empty", what))
	}
	if _, dup := seen[name]; dup {
		return append(errs, fmt.Errorf("%s %q is declared twice", what, name))
	}
	seen[name] = struct{}{}
	return errs
}
