package folder

import "strings"

// Mapping is the label a mailbox is presented under.
type Mapping struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

const (
	TypeSystem = "system"
	TypeUser   = "user"

	LabelUnread = "UNREAD"
)

var systemLabels = map[string]Mapping{
	Inbox:     {ID: "INBOX", Name: "Inbox", Type: TypeSystem},
	Sent:      {ID: "SENT", Name: "Sent", Type: TypeSystem},
	Drafts:    {ID: "DRAFT", Name: "Drafts", Type: TypeSystem},
	Trash:     {ID: "TRASH", Name: "Trash", Type: TypeSystem},
	Junk:      {ID: "SPAM", Name: "Spam", Type: TypeSystem},
	Archive:   {ID: "archive", Name: "Archive", Type: TypeSystem},
	Flagged:   {ID: "STARRED", Name: "Starred", Type: TypeSystem},
	All:       {ID: "all-mail", Name: "All Mail", Type: TypeSystem},
	Important: {ID: "IMPORTANT", Name: "Important", Type: TypeSystem},
}

// labelNames is wider than knownPaths: labels also cover localized and
// provider-specific names that Classify leaves untagged.
var labelNames = map[string]string{
	"inbox":             Inbox,
	"sent":              Sent,
	"sent items":        Sent,
	"sent mail":         Sent,
	"drafts":            Drafts,
	"draft":             Drafts,
	"draftbox":          Drafts,
	"brouillons":        Drafts,
	"trash":             Trash,
	"deleted items":     Trash,
	"deleted messages":  Trash,
	"bin":               Trash,
	"corbeille":         Trash,
	"unsolbox":          Trash,
	"junk":              Junk,
	"junk e-mail":       Junk,
	"spam":              Junk,
	"archive":           Archive,
	"archives":          Archive,
	"flagged":           Flagged,
	"starred":           Flagged,
	"all mail":          All,
	"[gmail]/all mail":  All,
	"[gmail]/sent mail": Sent,
	"[gmail]/drafts":    Drafts,
	"[gmail]/spam":      Junk,
	"[gmail]/trash":     Trash,
	"[gmail]/starred":   Flagged,
	"[gmail]/important": Important,
}

// Label maps a mailbox to its label. The special-use tag is tried first,
// then the path and leaf name; anything else becomes a user label keyed by
// path.
func Label(path, name, specialUse string) Mapping {
	if m, ok := systemLabels[specialUse]; ok {
		return m
	}
	special, ok := labelNames[strings.ToLower(path)]
	if !ok {
		special, ok = labelNames[strings.ToLower(name)]
	}
	if ok {
		if m, ok := systemLabels[special]; ok {
			return m
		}
	}
	return Mapping{ID: "folder-" + path, Name: name, Type: TypeUser}
}

// MessageLabels returns the label ids a message in a mailbox carries given
// its state flags.
func MessageLabels(m Mapping, isRead, isStarred, isDraft bool) []string {
	labels := []string{m.ID}
	if !isRead {
		labels = append(labels, LabelUnread)
	}
	if isStarred {
		labels = append(labels, systemLabels[Flagged].ID)
	}
	if isDraft {
		labels = append(labels, systemLabels[Drafts].ID)
	}
	return labels
}
