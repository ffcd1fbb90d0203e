// Package schema compares model input schemas.
package schema

import (
	"sort"
	"strings"

	"github.com/clinicscore/drug-advisor/internal/models"
)

// typeAliases maps a base type name onto the canonical type it is scored as.
var typeAliases = map[string]string{
	"decimal": "integer",
}

// BaseType strips a parenthesised size suffix such as "(12,6)" and resolves aliases.
func BaseType(fieldType string) string {
	if idx := strings.IndexByte(fieldType, '('); idx >= 0 {
		fieldType = fieldType[:idx]
	}
	if canonical, ok := typeAliases[fieldType]; ok {
		return canonical
	}
	return fieldType
}

// SameType reports whether two declared field types resolve to the same base type.
func SameType(a, b string) bool {
	return BaseType(a) == BaseType(b)
}

// Matches reports whether declared has exactly the fields of expected, ignoring order.
// Neither input is modified.
func Matches(declared, expected []models.SchemaField) bool {
	if len(declared) != len(expected) {
		return false
	}
	left := sortedByName(declared)
	right := sortedByName(expected)
	for i := range left {
		if left[i].Name != right[i].Name || !SameType(left[i].Type, right[i].Type) {
			return false
		}
	}
	return true
}

func sortedByName(fields []models.SchemaField) []models.SchemaField {
	out := append([]models.SchemaField(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
