// Package loader reads command definitions from a directory of *.sh files.
package loader

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/script"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
	"github.com/FUFSoB/cli-bot-discord/pkg/util"
)

const ext = ".sh"

// Scan parses every definition under dir, sorted by command name. Errors
// name the offending file.
func Scan(fs afero.Fs, dir string) ([]*definition.Descriptor, error) {
	var paths []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ext) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	type parsed struct {
		path string
		desc *definition.Descriptor
	}
	var (
		mu  sync.Mutex
		all = make([]parsed, 0, len(paths))
	)
	err = util.Parallel(context.Background(), paths, runtime.NumCPU(), func(_ context.Context, path string) error {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		d, err := definition.Parse(string(data), path)
		if err != nil {
			// header errors already carry the path as their origin
			if !strings.Contains(err.Error(), path) {
				err = fmt.Errorf("%s: %w", path, err)
			}
			return err
		}
		mu.Lock()
		all = append(all, parsed{path, d})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].desc.Name != all[j].desc.Name {
			return all[i].desc.Name < all[j].desc.Name
		}
		return all[i].path < all[j].path
	})
	descs := make([]*definition.Descriptor, len(all))
	for i, p := range all {
		if i > 0 && p.desc.Name == all[i-1].desc.Name {
			return nil, fmt.Errorf("command %q defined in both %s and %s", p.desc.Name, all[i-1].path, p.path)
		}
		descs[i] = p.desc
	}
	return descs, nil
}

// Load scans dir and registers each definition, wrapped in the given
// middleware. Nothing is registered when any file fails.
func Load(fs afero.Fs, dir string, reg *cmd.Registry, wrap ...cmd.Middleware) ([]*definition.Descriptor, error) {
	descs, err := Scan(fs, dir)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if reg.Get(d.Name) != nil {
			return nil, fmt.Errorf("command %q already registered", d.Name)
		}
	}
	for _, d := range descs {
		if err := reg.Register(cmd.Apply(script.NewDefined(d), wrap...)); err != nil {
			return nil, err
		}
	}
	log.Info().Int("commands", len(descs)).Str("dir", dir).Msg("Loaded command definitions")
	return descs, nil
}

// Reload replaces the registry contents with the definitions under dir. The
// registry is untouched when any file fails.
func Reload(fs afero.Fs, dir string, reg *cmd.Registry, wrap ...cmd.Middleware) ([]*definition.Descriptor, error) {
	descs, err := Scan(fs, dir)
	if err != nil {
		return nil, err
	}
	cmds := make([]cmd.Command, len(descs))
	for i, d := range descs {
		cmds[i] = cmd.Apply(script.NewDefined(d), wrap...)
	}
	reg.Replace(cmds)
	log.Info().Int("commands", len(descs)).Str("dir", dir).Msg("Reloaded command definitions")
	return descs, nil
}
