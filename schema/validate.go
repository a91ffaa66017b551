package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	classNameRe = regexp.MustCompile(`^_?[A-Za-z][A-Za-z0-9_]*$`)
	fieldNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Class   string
	Field   string
	Message string
	// Breaking indicates if this is a breaking change.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Class, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if there are any breaking changes.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(class, field, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Class: class, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(class, field, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Class: class, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate validates an external class schema: class and field names,
// field types, Pointer and Relation targets, and Array element types.
func Validate(c *Class) *ValidationResult {
	result := &ValidationResult{}
	if c == nil {
		result.errorf("", "", "missing class")
		return result
	}
	if !classNameRe.MatchString(c.ClassName) {
		result.errorf(c.ClassName, "", "invalid class name")
	}
	for _, name := range fieldNames(c) {
		f := c.Fields[name]
		switch {
		case !fieldNameRe.MatchString(name):
			result.errorf(c.ClassName, name, "invalid field name")
			continue
		case f == nil:
			result.errorf(c.ClassName, name, "missing field definition")
			continue
		case !f.Type.Valid():
			result.errorf(c.ClassName, name, "invalid field type %s", f.Type)
			continue
		}
		switch f.Type {
		case TypePointer, TypeRelation:
			if f.TargetClass == "" {
				result.errorf(c.ClassName, name, "%s field requires a target class", f.Type)
			} else if !classNameRe.MatchString(f.TargetClass) {
				result.errorf(c.ClassName, name, "invalid target class %q", f.TargetClass)
			}
		case TypeArray:
			if f.Contents != nil && !f.Contents.Type.Scalar() {
				result.warnf(c.ClassName, name, "array elements of type %s are matched by JSON equality only", f.Contents.Type)
			}
		default:
			if f.TargetClass != "" {
				result.warnf(c.ClassName, name, "target class is ignored for %s fields", f.Type)
			}
		}
	}
	for _, action := range sortedActions(c.ClassLevelPermissions) {
		if !isAction(action) && action != "protectedFields" && action != "count" {
			result.warnf(c.ClassName, "", "unknown class-level permission action %q", action)
		}
	}
	return result
}

// ValidateOption configures schema diff validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowDropField  bool
	allowTypeChange bool
}

// AllowDropField allows dropping fields without error.
func AllowDropField() ValidateOption {
	return func(c *validateConfig) {
		c.allowDropField = true
	}
}

// AllowTypeChange allows changing the type of a field without error.
func AllowTypeChange() ValidateOption {
	return func(c *validateConfig) {
		c.allowTypeChange = true
	}
}

// ValidateDiff validates the difference between the current and desired
// version of a class. Dropped fields and type changes are breaking:
// compiled queries against the old type no longer apply.
//
//	result := schema.ValidateDiff(current, desired)
//	if result.HasBreakingChanges() {
//	    return fmt.Errorf("breaking changes:\n%s", result)
//	}
func ValidateDiff(current, desired *Class, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := Validate(desired)
	if current == nil || desired == nil {
		return result
	}
	add := func(allowed bool, e *ValidationError) {
		if allowed {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	for _, name := range fieldNames(current) {
		cur := current.Fields[name]
		des, ok := desired.Fields[name]
		switch {
		case !ok:
			add(cfg.allowDropField, &ValidationError{
				Class:    current.ClassName,
				Field:    name,
				Message:  "field will be dropped",
				Breaking: true,
			})
		case cur != nil && des != nil && cur.Type != des.Type:
			add(cfg.allowTypeChange, &ValidationError{
				Class:    current.ClassName,
				Field:    name,
				Message:  fmt.Sprintf("field type changing from %s to %s", cur.Type, des.Type),
				Breaking: true,
			})
		case cur != nil && des != nil && cur.TargetClass != des.TargetClass:
			result.warnf(current.ClassName, name, "target class changing from %q to %q", cur.TargetClass, des.TargetClass)
		}
	}
	return result
}

func fieldNames(c *Class) []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedActions(clp ClassLevelPermissions) []string {
	actions := make([]string, 0, len(clp))
	for a := range clp {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

func isAction(s string) bool {
	for _, a := range Actions {
		if a == s {
			return true
		}
	}
	return false
}
