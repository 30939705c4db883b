// Package languages is the language registry (C3): a table of source
// filename, compile/run argv, and time/memory multipliers, loaded once from
// an embedded TOML table keyed by language name and alias.
package languages

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

//go:embed languages.toml
var embeddedTable []byte

// Limit is a (multiplier, bonus) pair: effective = base*multiplier + bonus.
type Limit struct {
	Multiplier uint32
	Bonus      uint32
}

// Descriptor describes how to compile and run submissions in one language.
// A nil CompileCommand denotes an interpreted language.
type Descriptor struct {
	Name           string
	Version        *semver.Version
	SourceFile     string
	CompileCommand []string
	RunCommand     []string
	TimeLimit      *Limit
	MemoryLimit    *Limit
	Aliases        []string
}

// EffectiveTimeMs computes base*multiplier + bonus*1000ms.
func (d *Descriptor) EffectiveTimeMs(baseMs uint32) uint32 {
	if d.TimeLimit == nil {
		return baseMs
	}
	return baseMs*d.TimeLimit.Multiplier + d.TimeLimit.Bonus*1000
}

// EffectiveMemoryMB computes base*multiplier + bonus.
func (d *Descriptor) EffectiveMemoryMB(baseMB uint32) uint32 {
	if d.MemoryLimit == nil {
		return baseMB
	}
	return baseMB*d.MemoryLimit.Multiplier + d.MemoryLimit.Bonus
}

type rawDescriptor struct {
	SourceFile     string   `toml:"source_file"`
	Version        string   `toml:"version"`
	CompileCommand []string `toml:"compile_command"`
	RunCommand     []string `toml:"run_command"`
	TimeLimit      []uint32 `toml:"time_limit"`
	MemoryLimit    []uint32 `toml:"memory_limit"`
	Aliases        []string `toml:"aliases"`
}

// Registry is a loaded, alias-expanded set of language descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// Load parses an embedded or caller-supplied TOML table into a Registry.
// Passing nil source uses the table embedded at build time.
func Load(source []byte) (*Registry, error) {
	if source == nil {
		source = embeddedTable
	}

	var raw map[string]rawDescriptor
	if err := toml.Unmarshal(source, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse language table: %w", err)
	}

	descriptors := make(map[string]*Descriptor)
	for name, rd := range raw {
		if len(rd.RunCommand) == 0 {
			return nil, fmt.Errorf("language %q has no run_command", name)
		}

		desc := &Descriptor{
			Name:           name,
			SourceFile:     rd.SourceFile,
			CompileCommand: rd.CompileCommand,
			RunCommand:     rd.RunCommand,
			Aliases:        rd.Aliases,
		}

		if rd.Version != "" {
			if v, err := semver.NewVersion(rd.Version); err == nil {
				desc.Version = v
			}
		}

		if len(rd.TimeLimit) > 0 {
			lim, err := toLimit(name, "time", rd.TimeLimit)
			if err != nil {
				return nil, err
			}
			desc.TimeLimit = lim
		}
		if len(rd.MemoryLimit) > 0 {
			lim, err := toLimit(name, "memory", rd.MemoryLimit)
			if err != nil {
				return nil, err
			}
			desc.MemoryLimit = lim
		}

		key := strings.ToLower(name)
		descriptors[key] = desc
		for _, alias := range rd.Aliases {
			descriptors[strings.ToLower(alias)] = desc
		}
	}

	return &Registry{descriptors: descriptors}, nil
}

func toLimit(name, kind string, raw []uint32) (*Limit, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("invalid %s limit for %s: expected [multiplier, bonus], got %v", kind, name, raw)
	}
	return &Limit{Multiplier: raw[0], Bonus: raw[1]}, nil
}

// Get looks up a descriptor by language name or alias, case-insensitively.
func (r *Registry) Get(language string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[strings.ToLower(language)]
	return d, ok
}

// Names returns all distinct descriptor names (not aliases) in the registry.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, d := range r.descriptors {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	return names
}
