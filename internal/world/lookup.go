package world

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// find returns the index of the entity matching id, or failing that the
// first whose name case-insensitively contains name or is contained by it.
// Returns -1 when nothing matches.
func find[T any](items []T, id, name string, key func(T) (string, string)) int {
	if id != "" {
		for i, it := range items {
			if itemID, _ := key(it); itemID == id {
				return i
			}
		}
	}
	probe := fold(name)
	if probe == "" {
		// Narrators sometimes put a name in the id field.
		probe = fold(id)
	}
	if probe == "" {
		return -1
	}
	for i, it := range items {
		_, itemName := key(it)
		n := fold(itemName)
		if n == "" {
			continue
		}
		if n == probe || strings.Contains(n, probe) || strings.Contains(probe, n) {
			return i
		}
	}
	return -1
}

// sameText compares two strings ignoring case and surrounding space.
func sameText(a, b string) bool {
	return fold(a) == fold(b)
}

func removeFolded(list []string, values ...string) []string {
	out := list[:0:0]
	for _, s := range list {
		drop := false
		for _, v := range values {
			if sameText(s, v) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, s)
		}
	}
	return out
}

func appendFolded(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, s := range list {
			if sameText(s, v) {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}
