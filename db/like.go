package db

import "strings"

var likeEscaper = strings.NewReplacer(
	"_", `\_`,
	"%", `\%`,
)

// EscapeLike escapes the pattern metacharacters in s so it can be embedded
// in a LIKE or ILIKE expression as a literal match.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
