package sandbox

import "strings"

// Placeholders recognized in Step.Program, Step.Args and LanguageSpec.Artifacts
const (
	PlaceholderSource     = "{source}"
	PlaceholderSourceName = "{source_name}"
	PlaceholderBinary     = "{binary}"
	PlaceholderWorkdir    = "{workdir}"
	PlaceholderID         = "{id}"
)

// templateVars holds the generated paths of one workspace.
type templateVars struct {
	Source     string
	SourceName string
	Binary     string
	Workdir    string
	ID         string
}

func (v templateVars) replacer() *strings.Replacer {
	return strings.NewReplacer(
		PlaceholderSourceName, v.SourceName,
		PlaceholderSource, v.Source,
		PlaceholderBinary, v.Binary,
		PlaceholderWorkdir, v.Workdir,
		PlaceholderID, v.ID,
	)
}

// expand substitutes placeholders in a single template.
func (v templateVars) expand(tpl string) string {
	return v.replacer().Replace(tpl)
}

// expandArgs expands every template independently so that each stays exactly
// one argv element whatever the substituted values contain.
func (v templateVars) expandArgs(tpls []string) []string {
	r := v.replacer()
	args := make([]string, len(tpls))
	for i, tpl := range tpls {
		args[i] = r.Replace(tpl)
	}
	return args
}
