package testing

import (
	"regexp"
)

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandVariables replaces ${name} and $name with values from vars. Unknown
// names are left as written.
func ExpandVariables(s string, vars map[string]string) string {
	if len(vars) == 0 {
		return s
	}
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// ExpandAll applies ExpandVariables to every element of list.
func ExpandAll(list []string, vars map[string]string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = ExpandVariables(s, vars)
	}
	return out
}

// MergeVariables returns defaults with overrides applied on top.
func MergeVariables(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
