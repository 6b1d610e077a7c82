package roconfig

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidatePlanDefinition performs schema and cross-reference validation on
// an entire plan definition: struct tags, duplicate task IDs, relation
// endpoints referencing declared tasks, and a dependency-relation cycle
// check.
func ValidatePlanDefinition(def *PlanDefinition) error {
	if def == nil {
		return NewValidationError("plan", "plan definition is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(def); err != nil {
		return convertValidationError(err)
	}

	taskIndex := make(map[string]bool, len(def.Tasks))
	for i, task := range def.Tasks {
		if taskIndex[task.ID] {
			return NewValidationError(fieldForTask(i, "id"), fmt.Sprintf("duplicate task id %q", task.ID), nil)
		}
		taskIndex[task.ID] = true
	}

	for i, rel := range def.Relations {
		if err := validateRelation(rel, i, taskIndex); err != nil {
			return err
		}
	}

	if cycle := dependencyCycle(def); len(cycle) > 0 {
		return NewValidationError("relations", fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	return nil
}

func validateRelation(rel RelationDefinition, index int, taskIndex map[string]bool) error {
	v := validatorInstance()
	if err := v.Struct(rel); err != nil {
		return convertValidationError(err)
	}

	if !taskIndex[rel.From] {
		return NewValidationError(fieldForRelation(index, "from"), fmt.Sprintf("references unknown task %q", rel.From), nil)
	}
	if !taskIndex[rel.To] {
		return NewValidationError(fieldForRelation(index, "to"), fmt.Sprintf("references unknown task %q", rel.To), nil)
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return NewValidationError(field, msg, err)
	}
	return NewValidationError("plan", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForTask(index int, field string) string {
	return fmt.Sprintf("tasks[%d].%s", index, field)
}

func fieldForRelation(index int, field string) string {
	return fmt.Sprintf("relations[%d].%s", index, field)
}
