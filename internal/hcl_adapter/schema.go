package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is the shape of one configuration file.
type fileRoot struct {
	Codec         *string      `hcl:"codec,optional"`
	InvokeTimeout *string      `hcl:"invoke_timeout,optional"`
	Verbose       *bool        `hcl:"verbose,optional"`
	Server        *ServerBlock `hcl:"server,block"`
	Client        *ClientBlock `hcl:"client,block"`
}

// ServerBlock is the HCL schema of a `server` block.
type ServerBlock struct {
	Listen    string           `hcl:"listen"`
	Events    []*EventBlock    `hcl:"event,block"`
	Functions []*FunctionBlock `hcl:"function,block"`
}

// EventBlock is the HCL schema of a server `event "name" {}` block.
type EventBlock struct {
	Name        string `hcl:"name,label"`
	Rebroadcast bool   `hcl:"rebroadcast,optional"`
}

// FunctionBlock is the HCL schema of a server `function "name" {}` block.
type FunctionBlock struct {
	Name  string `hcl:"name,label"`
	Reply string `hcl:"reply,optional"`
}

// ClientBlock is the HCL schema of a `client` block.
type ClientBlock struct {
	URL                string         `hcl:"url"`
	Namespace          string         `hcl:"namespace,optional"`
	ConnectTimeout     string         `hcl:"connect_timeout,optional"`
	InsecureSkipVerify bool           `hcl:"insecure_skip_verify,optional"`
	Listen             []*ListenBlock `hcl:"listen,block"`
	Steps              []*StepBlock   `hcl:"step,block"`
}

// ListenBlock is the HCL schema of a client `listen "name" {}` block.
type ListenBlock struct {
	Name string `hcl:"name,label"`
}

// StepBlock is the HCL schema of a client `step "kind" "handle" {}` block.
type StepBlock struct {
	Kind   string         `hcl:"kind,label"`
	Handle string         `hcl:"handle,label"`
	Args   hcl.Expression `hcl:"args,optional"`
}
