package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a value while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if at := strings.LastIndex(trimmed, "@"); at > 0 {
		return maskToken + trimmed[at:]
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input where values under the named keys are
// masked, at any nesting depth. Other values are copied as is.
func MaskFields(input map[string]any, fields ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		sensitive[strings.ToLower(strings.TrimSpace(field))] = struct{}{}
	}
	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]struct{}) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitive[strings.ToLower(trimmedKey)]; ok {
			masked[trimmedKey] = maskValue(value)
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			masked[trimmedKey] = maskMap(cast, sensitive)
		default:
			masked[trimmedKey] = value
		}
	}
	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case []string:
		out := make([]string, 0, len(cast))
		for _, item := range cast {
			out = append(out, MaskSecret(item))
		}
		return out
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(cast))
		for key, item := range cast {
			out[key] = maskValue(item)
		}
		return out
	default:
		return value
	}
}
