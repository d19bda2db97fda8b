package table

import "strings"

var nameReplacer = strings.NewReplacer(" ", "_", ".", "")

// Normalize maps a column or table name to its warehouse identifier form:
// every space becomes an underscore and every period is removed.
// It is total and idempotent.
func Normalize(name string) string {
	return nameReplacer.Replace(name)
}

// Normalized returns d with every column name passed through Normalize.
func Normalized(d *Dataset) *Dataset {
	return d.Renamed(Normalize)
}
