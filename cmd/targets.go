package cmd

import (
	"fmt"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/iconfetch/internal/catalog"
	"github.com/xkilldash9x/iconfetch/internal/config"
)

// resolveTargets picks the icon names for a run and turns them into URLs.
// Precedence: positional arguments, then the names file, then configured
// names, then the built-in catalog.
func resolveTargets(cfg *config.Config, args []string) ([]catalog.Icon, error) {
	resolver, err := catalog.NewResolver(cfg.Fetch.BaseURL, cfg.Fetch.FilePattern)
	if err != nil {
		return nil, err
	}

	var names []string
	switch {
	case len(args) > 0:
		names = catalog.Dedupe(args)
	case cfg.Fetch.NamesFile != "":
		path, err := homedir.Expand(cfg.Fetch.NamesFile)
		if err != nil {
			return nil, fmt.Errorf("expand names file path: %w", err)
		}
		if names, err = catalog.LoadNames(appFs, path); err != nil {
			return nil, err
		}
	case len(cfg.Fetch.Names) > 0:
		names = catalog.Dedupe(cfg.Fetch.Names)
	default:
		names = catalog.DefaultNames
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no icon names to fetch")
	}
	return resolver.ResolveAll(names)
}
