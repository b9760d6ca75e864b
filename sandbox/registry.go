package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry maps language identifiers to recipes. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	specs   map[string]LanguageSpec
	aliases map[string]string
}

// NewRegistry constructs a registry from the supplied recipes.
func NewRegistry(specs ...LanguageSpec) (*Registry, error) {
	reg := &Registry{
		specs:   make(map[string]LanguageSpec, len(specs)),
		aliases: make(map[string]string),
	}

	for _, spec := range specs {
		spec.ID = normalizeLanguage(spec.ID)
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		if _, exists := reg.lookup(spec.ID); exists {
			return nil, fmt.Errorf("duplicate recipe for language %q", spec.ID)
		}
		reg.specs[spec.ID] = spec

		for _, alias := range spec.Aliases {
			alias = normalizeLanguage(alias)
			if alias == "" || alias == spec.ID {
				continue
			}
			if _, exists := reg.lookup(alias); exists {
				return nil, fmt.Errorf("alias %q of language %q is already registered", alias, spec.ID)
			}
			reg.aliases[alias] = spec.ID
		}
	}

	if len(reg.specs) == 0 {
		return nil, errors.New("at least one language recipe must be registered")
	}

	return reg, nil
}

// Resolve returns the recipe registered for id or one of its aliases.
func (r *Registry) Resolve(id string) (LanguageSpec, error) {
	spec, ok := r.lookup(normalizeLanguage(id))
	if !ok {
		return LanguageSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, id)
	}
	return spec, nil
}

// Languages returns the sorted canonical identifiers.
func (r *Registry) Languages() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) lookup(id string) (LanguageSpec, bool) {
	if spec, ok := r.specs[id]; ok {
		return spec, true
	}
	if canonical, ok := r.aliases[id]; ok {
		return r.specs[canonical], true
	}
	return LanguageSpec{}, false
}

// MergeLanguages overlays overrides on base by ID, keeping base order and
// appending new identifiers.
func MergeLanguages(base []LanguageSpec, overrides ...LanguageSpec) []LanguageSpec {
	index := make(map[string]int, len(base))
	merged := make([]LanguageSpec, 0, len(base)+len(overrides))
	for _, spec := range base {
		index[normalizeLanguage(spec.ID)] = len(merged)
		merged = append(merged, spec)
	}
	for _, spec := range overrides {
		if i, ok := index[normalizeLanguage(spec.ID)]; ok {
			merged[i] = spec
			continue
		}
		index[normalizeLanguage(spec.ID)] = len(merged)
		merged = append(merged, spec)
	}
	return merged
}

func validateSpec(spec LanguageSpec) error {
	if spec.ID == "" {
		return errors.New("language recipe missing identifier")
	}
	if spec.Extension == "" && spec.SourceFile == "" {
		return fmt.Errorf("language %q: extension or source file is required", spec.ID)
	}
	if spec.Extension != "" && !strings.HasPrefix(spec.Extension, ".") {
		return fmt.Errorf("language %q: extension %q must start with a dot", spec.ID, spec.Extension)
	}
	if spec.SourceFile != "" && filepath.Base(spec.SourceFile) != spec.SourceFile {
		return fmt.Errorf("language %q: source file %q must be a bare file name", spec.ID, spec.SourceFile)
	}
	if len(spec.Steps) == 0 {
		return fmt.Errorf("language %q: at least one step is required", spec.ID)
	}

	capture := false
	for i, step := range spec.Steps {
		if step.Program == "" {
			return fmt.Errorf("language %q: step %d has no program", spec.ID, i)
		}
		capture = capture || step.Capture
	}
	if !capture {
		return fmt.Errorf("language %q: no step captures program output", spec.ID)
	}
	return nil
}

func normalizeLanguage(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
