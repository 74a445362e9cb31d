package imap

import (
	"context"
	"strconv"
	"strings"

	"imapcore/internal/folder"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/utf7"
)

const statusHighestModSeq imap.StatusItem = "HIGHESTMODSEQ"

// ListFolders lists every mailbox with its message and unseen counts. A
// mailbox whose STATUS fails is kept with zero counts.
func (s *Session) ListFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := s.do(ctx, "LIST", "", func(c Client) error {
		infos, err := collect(func(ch chan *imap.MailboxInfo) error {
			return c.List("", "*", ch)
		})
		if err != nil {
			return s.wrap("LIST", "", 0, err)
		}

		folders = make([]Folder, 0, len(infos))
		for _, info := range infos {
			f := newFolder(info)
			if !hasAttr(info.Attributes, imap.NoSelectAttr) {
				status, err := c.Status(info.Name, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen})
				switch {
				case err == nil:
					f.Exists, f.Unseen = status.Messages, status.Unseen
				case classify(c, err) == KindTransport:
					return s.wrap("STATUS", f.Path, 0, err)
				default:
					s.log.Warn("folder status failed", "folder", f.Path, "error", err)
				}
			}
			folders = append(folders, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func newFolder(info *imap.MailboxInfo) Folder {
	path := info.Name
	raw, err := utf7.Encoding.NewEncoder().String(path)
	if err != nil {
		raw = path
	}
	name := path
	if info.Delimiter != "" {
		if i := strings.LastIndex(path, info.Delimiter); i >= 0 {
			name = path[i+len(info.Delimiter):]
		}
	}
	return Folder{
		Path:       path,
		RawPath:    raw,
		Name:       name,
		Delimiter:  info.Delimiter,
		SpecialUse: folder.Classify(path, info.Attributes),
		Attributes: info.Attributes,
	}
}

func hasAttr(attrs []string, want string) bool {
	for _, attr := range attrs {
		if strings.EqualFold(attr, want) {
			return true
		}
	}
	return false
}

// FindSpecialFolder returns the path of the first folder tagged specialUse.
func FindSpecialFolder(folders []Folder, specialUse string) (string, bool) {
	for _, f := range folders {
		if strings.EqualFold(f.SpecialUse, specialUse) {
			return f.Path, true
		}
	}
	return "", false
}

// FolderStatus issues STATUS without selecting the folder.
func (s *Session) FolderStatus(ctx context.Context, name string) (FolderStatus, error) {
	var result FolderStatus
	err := s.do(ctx, "STATUS", name, func(c Client) error {
		items := []imap.StatusItem{
			imap.StatusMessages,
			imap.StatusUnseen,
			imap.StatusUidValidity,
			imap.StatusUidNext,
		}
		condstore, err := c.Support("CONDSTORE")
		if err != nil {
			return s.wrap("CAPABILITY", name, 0, err)
		}
		if condstore {
			items = append(items, statusHighestModSeq)
		}

		status, err := c.Status(name, items)
		if err != nil {
			return s.wrap("STATUS", name, 0, err)
		}
		result = FolderStatus{
			Folder:        name,
			UIDValidity:   status.UidValidity,
			UIDNext:       status.UidNext,
			Exists:        status.Messages,
			Unseen:        status.Unseen,
			HighestModSeq: parseModSeq(status.Items[statusHighestModSeq]),
		}
		return nil
	})
	return result, err
}

func parseModSeq(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// selectedStatus converts a SELECT response. SELECT reports the first
// unseen sequence number rather than a count, so Unseen stays zero.
func selectedStatus(name string, status *imap.MailboxStatus) FolderStatus {
	if status == nil {
		return FolderStatus{Folder: name}
	}
	return FolderStatus{
		Folder:      name,
		UIDValidity: status.UidValidity,
		UIDNext:     status.UidNext,
		Exists:      status.Messages,
	}
}
