package roconfig

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParsePlanDefinition loads a plan definition from disk and validates it.
func ParsePlanDefinition(path string) (*PlanDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(path, 0, err)
	}

	var def PlanDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewParseError(path, extractLine(err), err)
	}

	if err := ValidatePlanDefinition(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
