package descriptor

import "strings"

// canonical primitive names, keyed by lower-case alias
var primitiveAliases = map[string]string{
	"int":      "int32",
	"int32":    "int32",
	"integer":  "int32",
	"long":     "int64",
	"int64":    "int64",
	"short":    "int16",
	"int16":    "int16",
	"byte":     "uint8",
	"uint8":    "uint8",
	"float":    "float32",
	"single":   "float32",
	"float32":  "float32",
	"double":   "float64",
	"float64":  "float64",
	"decimal":  "decimal",
	"bool":     "bool",
	"boolean":  "bool",
	"string":   "string",
	"char":     "string",
	"datetime": "datetime",
	"date":     "datetime",
	"guid":     "guid",
	"uuid":     "guid",
	"bytes":    "bytes",
	"binary":   "bytes",
	"timespan": "duration",
	"duration": "duration",
}

// IsPrimitive reports whether typeName is a built-in scalar.
func IsPrimitive(typeName string) bool {
	_, ok := primitiveAliases[strings.ToLower(strings.TrimSpace(typeName))]
	return ok
}

// Canonical normalizes a declared type name so that aliases compare equal.
// Non-primitive names are returned trimmed but otherwise unchanged.
func Canonical(typeName string) string {
	trimmed := strings.TrimSpace(typeName)
	if c, ok := primitiveAliases[strings.ToLower(trimmed)]; ok {
		return c
	}
	return trimmed
}
