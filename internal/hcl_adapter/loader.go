package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/netbus/internal/config"
	"github.com/specialistvlad/netbus/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths and merges them into one model.
// Top-level attributes from later files override earlier ones; a server or
// client block may appear in one file only.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := newEvalContext()
	model := &config.Model{InvokeTimeout: config.DefaultInvokeTimeout}

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := l.mergeFile(ctx, model, &root, evalCtx); err != nil {
			return nil, fmt.Errorf("in HCL file %s: %w", file, err)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("HCL loading complete.", "server", model.Server != nil, "client", model.Client != nil)
	return model, nil
}

func (l *Loader) mergeFile(ctx context.Context, model *config.Model, root *fileRoot, evalCtx *hcl.EvalContext) error {
	if root.Codec != nil {
		model.Codec = *root.Codec
	}
	if root.InvokeTimeout != nil {
		d, err := parseDuration(*root.InvokeTimeout, "invoke_timeout")
		if err != nil {
			return err
		}
		model.InvokeTimeout = d
	}
	if root.Verbose != nil {
		model.Verbose = *root.Verbose
	}

	if root.Server != nil {
		if model.Server != nil {
			return fmt.Errorf("duplicate server block")
		}
		model.Server = l.translateServer(ctx, root.Server)
	}
	if root.Client != nil {
		if model.Client != nil {
			return fmt.Errorf("duplicate client block")
		}
		client, err := l.translateClient(ctx, root.Client, evalCtx)
		if err != nil {
			return err
		}
		model.Client = client
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && filepath.Ext(p) == ".hcl" {
					if _, wasSeen := seen[p]; !wasSeen {
						allFiles = append(allFiles, p)
						seen[p] = struct{}{}
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
