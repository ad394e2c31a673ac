package ir

import "strings"

// SplitQualifiedName splits "a.b.Entity" into namespace "a.b" and bare
// name "Entity". A name with no dot returns ("", name).
func SplitQualifiedName(qualified string) (namespace, name string) {
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}
