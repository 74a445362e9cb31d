// Package folder assigns special-use roles and display labels to mailboxes.
package folder

import "strings"

// RFC 6154 special-use attributes.
const (
	Sent    = `\Sent`
	Trash   = `\Trash`
	Drafts  = `\Drafts`
	Junk    = `\Junk`
	Archive = `\Archive`
	All     = `\All`
	Flagged = `\Flagged`

	Inbox     = `\Inbox`
	Important = `\Important`
)

var specialUseAttrs = []string{Sent, Trash, Drafts, Junk, Archive, All, Flagged}

// knownPaths backs Classify for servers that do not send special-use
// attributes.
var knownPaths = map[string]string{
	"sent":              Sent,
	"sent messages":     Sent,
	"sent items":        Sent,
	"[gmail]/sent mail": Sent,
	"trash":             Trash,
	"deleted":           Trash,
	"deleted items":     Trash,
	"deleted messages":  Trash,
	"[gmail]/trash":     Trash,
	"drafts":            Drafts,
	"draft":             Drafts,
	"[gmail]/drafts":    Drafts,
	"junk":              Junk,
	"spam":              Junk,
	"junk e-mail":       Junk,
	"[gmail]/spam":      Junk,
	"archive":           Archive,
	"archives":          Archive,
	"[gmail]/all mail":  Archive,
}

// Classify returns the special-use tag of a mailbox, or "" when it has none.
// Attributes win over the name; the name is matched against the full decoded
// path, case-insensitively.
func Classify(path string, attrs []string) string {
	for _, attr := range attrs {
		for _, special := range specialUseAttrs {
			if strings.EqualFold(attr, special) {
				return special
			}
		}
	}
	return knownPaths[strings.ToLower(path)]
}

// Syncable reports whether a mailbox holds messages worth syncing. Provider
// container folders are skipped.
func Syncable(path string) bool {
	lower := strings.ToLower(path)
	if lower == "[gmail]" || lower == "[google mail]" {
		return false
	}
	return !strings.HasPrefix(lower, "[nostromo]")
}
