package tools

import "avrbridge/internal/domain"

// All returns every tool this build knows about.
func All() []domain.Tool {
	return []domain.Tool{Avrdude{}, Avarice{}}
}

// ByID looks a tool up by its stable identifier.
func ByID(id string) (domain.Tool, bool) {
	for _, tool := range All() {
		if tool.ID() == id {
			return tool, true
		}
	}
	return nil, false
}

// Defaults merges the default attributes of all known tools.
func Defaults() map[string]string {
	merged := make(map[string]string)
	for _, tool := range All() {
		for key, value := range tool.Defaults() {
			merged[key] = value
		}
	}
	return merged
}
