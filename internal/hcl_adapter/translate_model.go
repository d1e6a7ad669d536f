// This file contains the logic for translating HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/netbus/internal/config"
	"github.com/specialistvlad/netbus/internal/ctxlog"
)

// translateServer converts the HCL server schema into the agnostic model.
func (l *Loader) translateServer(ctx context.Context, s *ServerBlock) *config.Server {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Translating HCL server block.", "listen", s.Listen, "events", len(s.Events), "functions", len(s.Functions))

	server := &config.Server{Listen: s.Listen}
	for _, e := range s.Events {
		server.Events = append(server.Events, &config.Event{Name: e.Name, Rebroadcast: e.Rebroadcast})
	}
	for _, f := range s.Functions {
		reply := f.Reply
		if reply == "" {
			reply = config.ReplyEcho
		}
		server.Functions = append(server.Functions, &config.Function{Name: f.Name, Reply: reply})
	}
	return server
}

// translateClient converts the HCL client schema into the agnostic model,
// evaluating every step's arguments.
func (l *Loader) translateClient(ctx context.Context, c *ClientBlock, evalCtx *hcl.EvalContext) (*config.Client, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Translating HCL client block.", "url", c.URL, "steps", len(c.Steps))

	timeout, err := parseDuration(c.ConnectTimeout, "connect_timeout")
	if err != nil {
		return nil, err
	}

	client := &config.Client{
		URL:                c.URL,
		Namespace:          c.Namespace,
		ConnectTimeout:     timeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	for _, listen := range c.Listen {
		client.Listen = append(client.Listen, listen.Name)
	}
	for _, s := range c.Steps {
		args, err := evalArgs(ctx, s.Args, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("step %q %q: %w", s.Kind, s.Handle, err)
		}
		client.Steps = append(client.Steps, &config.Step{Kind: s.Kind, Handle: s.Handle, Args: args})
	}
	return client, nil
}
