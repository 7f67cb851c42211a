package config

import (
	"strings"

	"github.com/tidwall/jsonc"
)

// Parse reads JSONC configuration content over base. Comments and trailing
// commas are allowed; unknown keys are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	// ToJSON blanks comments in place, so decode offsets still match the file.
	return parseJSON(string(jsonc.ToJSON([]byte(content))), base)
}
