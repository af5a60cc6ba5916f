package database

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldSearchText lowercases s and strips diacritics so that "Àdébáyọ̀" and
// "adebayo" compare equal in LIKE queries.
func FoldSearchText(parts ...string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	joined := strings.Join(parts, " ")
	folded, _, err := transform.String(t, joined)
	if err != nil {
		return strings.ToLower(joined)
	}
	return strings.Join(strings.Fields(folded), " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s anywhere in a LIKE ... ESCAPE '\' comparison,
// with s's own wildcards taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
