package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// languagesFile is the document layout of sandbox.languages_file:
//
//	languages:
//	  kotlin:
//	    extension: .kt
//	    steps:
//	      - name: compile
//	        program: kotlinc
//	        args: ["{source}", "-include-runtime", "-d", "{binary}.jar"]
//	      - name: run
//	        program: java
//	        args: ["-jar", "{binary}.jar"]
//	        capture: true
//	    artifacts: ["{binary}.jar"]
type languagesFile struct {
	Languages map[string]Language `yaml:"languages"`
}

// LoadLanguagesFile reads a standalone recipe table.
func LoadLanguagesFile(path string) (map[string]Language, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading languages file: %w", err)
	}

	var doc languagesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing languages file %s: %w", path, err)
	}

	return doc.Languages, nil
}
