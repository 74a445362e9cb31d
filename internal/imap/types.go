package imap

import "imapcore/internal/message"

// Folder is one mailbox as listed by the server. Path is UTF-8; RawPath is
// the modified UTF-7 form used on the wire.
type Folder struct {
	Path       string   `json:"path"`
	RawPath    string   `json:"raw_path"`
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	SpecialUse string   `json:"special_use,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Exists     uint32   `json:"exists"`
	Unseen     uint32   `json:"unseen"`
}

// FolderStatus is a point-in-time view of a mailbox. HighestModSeq is 0
// when the server does not support CONDSTORE.
type FolderStatus struct {
	Folder        string `json:"folder"`
	UIDValidity   uint32 `json:"uidvalidity"`
	UIDNext       uint32 `json:"uidnext"`
	Exists        uint32 `json:"exists"`
	Unseen        uint32 `json:"unseen"`
	HighestModSeq uint64 `json:"highest_modseq,omitempty"`
}

// FetchResult pairs fetched messages with the status seen when the folder
// was selected. The two are not an atomic snapshot.
type FetchResult struct {
	Messages []*message.Message `json:"messages"`
	Status   FolderStatus       `json:"status"`
}

type FlagOp int

const (
	AddFlags FlagOp = iota
	RemoveFlags
)

func (op FlagOp) String() string {
	if op == RemoveFlags {
		return "-FLAGS"
	}
	return "+FLAGS"
}
