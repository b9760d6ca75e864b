package sandbox

// Step is one external program invocation of a recipe.
type Step struct {
	Name    string
	Program string
	// Args are templates expanded one element at a time; see expandArgs.
	Args []string
	// ContinueOnFailure lets the recipe proceed past a non-zero exit.
	ContinueOnFailure bool
	// Capture marks steps whose output is the program output. Output of
	// the other steps is reported as diagnostics.
	Capture bool
}

// LanguageSpec is the recipe registered for a language identifier.
type LanguageSpec struct {
	ID      string
	Aliases []string
	// Extension includes the leading dot.
	Extension string
	// SourceFile fixes the staged file name for toolchains that derive
	// names from it (javac). Empty means code_<id><Extension>.
	SourceFile string
	Steps      []Step
	// Artifacts are path templates removed together with the source.
	Artifacts []string
	Env       map[string]string
}

// Language identifiers of the built-in recipes
const (
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
	LanguageJava       = "java"
	LanguageC          = "c"
	LanguageCPP        = "cpp"
	LanguageGo         = "go"
	LanguageRust       = "rust"
	LanguagePHP        = "php"
	LanguageRuby       = "ruby"
)

// DefaultLanguages returns the built-in recipe table.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:        LanguagePython,
			Aliases:   []string{"python3", "py"},
			Extension: ".py",
			Steps: []Step{
				{Name: "run", Program: "python3", Args: []string{"{source}"}, Capture: true},
			},
			Env: map[string]string{"PYTHONDONTWRITEBYTECODE": "1", "PYTHONUNBUFFERED": "1"},
		},
		{
			ID:        LanguageJavaScript,
			Aliases:   []string{"js", "node", "nodejs"},
			Extension: ".js",
			Steps: []Step{
				{Name: "run", Program: "node", Args: []string{"{source}"}, Capture: true},
			},
		},
		{
			ID:         LanguageJava,
			Extension:  ".java",
			SourceFile: "Main.java",
			Steps: []Step{
				{Name: "compile", Program: "javac", Args: []string{"-d", "{workdir}", "{source}"}},
				{Name: "run", Program: "java", Args: []string{"-cp", "{workdir}", "Main"}, Capture: true},
			},
			Artifacts: []string{"{workdir}/Main.class"},
		},
		{
			ID:        LanguageC,
			Extension: ".c",
			Steps: []Step{
				{Name: "compile", Program: "gcc", Args: []string{"{source}", "-o", "{binary}"}},
				{Name: "run", Program: "{binary}", Capture: true},
			},
			Artifacts: []string{"{binary}"},
		},
		{
			ID:        LanguageCPP,
			Aliases:   []string{"c++"},
			Extension: ".cpp",
			Steps: []Step{
				{Name: "compile", Program: "g++", Args: []string{"{source}", "-o", "{binary}"}},
				{Name: "run", Program: "{binary}", Capture: true},
			},
			Artifacts: []string{"{binary}"},
		},
		{
			ID:        LanguageGo,
			Aliases:   []string{"golang"},
			Extension: ".go",
			Steps: []Step{
				{Name: "compile", Program: "go", Args: []string{"build", "-o", "{binary}", "{source}"}},
				{Name: "run", Program: "{binary}", Capture: true},
			},
			Artifacts: []string{"{binary}"},
			Env:       map[string]string{"GO111MODULE": "off"},
		},
		{
			ID:        LanguageRust,
			Aliases:   []string{"rs"},
			Extension: ".rs",
			Steps: []Step{
				{Name: "compile", Program: "rustc", Args: []string{"{source}", "-o", "{binary}"}},
				{Name: "run", Program: "{binary}", Capture: true},
			},
			Artifacts: []string{"{binary}"},
		},
		{
			ID:        LanguagePHP,
			Extension: ".php",
			Steps: []Step{
				{Name: "run", Program: "php", Args: []string{"{source}"}, Capture: true},
			},
		},
		{
			ID:        LanguageRuby,
			Aliases:   []string{"rb"},
			Extension: ".rb",
			Steps: []Step{
				{Name: "run", Program: "ruby", Args: []string{"{source}"}, Capture: true},
			},
		},
	}
}
