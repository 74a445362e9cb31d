// Package message turns raw RFC 5322 bytes plus IMAP metadata into Message
// records.
package message

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html/charset"
)

const (
	snippetLength    = 200
	fallbackFilename = "attachment"
	fallbackMIMEType = "application/octet-stream"
)

func init() {
	gomessage.CharsetReader = charset.NewReaderLabel
}

// Message is one normalized email. Empty strings mean the header or part was
// absent.
type Message struct {
	UID                 uint32       `json:"uid"`
	Folder              string       `json:"folder"`
	MessageID           string       `json:"message_id,omitempty"`
	InReplyTo           string       `json:"in_reply_to,omitempty"`
	References          string       `json:"references,omitempty"`
	FromAddress         string       `json:"from_address,omitempty"`
	FromName            string       `json:"from_name,omitempty"`
	To                  string       `json:"to_addresses,omitempty"`
	Cc                  string       `json:"cc_addresses,omitempty"`
	Bcc                 string       `json:"bcc_addresses,omitempty"`
	ReplyTo             string       `json:"reply_to,omitempty"`
	Subject             string       `json:"subject,omitempty"`
	Date                int64        `json:"date"`
	IsRead              bool         `json:"is_read"`
	IsStarred           bool         `json:"is_starred"`
	IsDraft             bool         `json:"is_draft"`
	BodyHTML            string       `json:"body_html,omitempty"`
	BodyText            string       `json:"body_text,omitempty"`
	Snippet             string       `json:"snippet,omitempty"`
	RawSize             uint32       `json:"raw_size"`
	ListUnsubscribe     string       `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string       `json:"list_unsubscribe_post,omitempty"`
	AuthResults         string       `json:"auth_results,omitempty"`
	Auth                *AuthResult  `json:"auth,omitempty"`
	Attachments         []Attachment `json:"attachments"`
}

// Attachment describes a non-body leaf part. PartID is positional within the
// message it was parsed from.
type Attachment struct {
	PartID    string `json:"part_id"`
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline"`
}

// Meta is what the server reports alongside the message bytes.
type Meta struct {
	UID    uint32
	Folder string
	Flags  []string
	Size   uint32
}

// Parse normalizes raw. It fails only when the top-level header cannot be
// read; a broken MIME structure further in ends the part walk and keeps
// what was decoded so far.
func Parse(raw []byte, meta Meta) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return nil, fmt.Errorf("parse message header: %w", err)
	}

	m := &Message{
		UID:         meta.UID,
		Folder:      meta.Folder,
		RawSize:     meta.Size,
		Attachments: []Attachment{},
	}
	if m.RawSize == 0 {
		m.RawSize = uint32(len(raw))
	}
	applyFlags(m, meta.Flags)
	readHeader(m, &mr.Header)

	_ = eachPart(mr, nil, func(p *part) bool {
		switch p.kind {
		case kindText:
			m.BodyText = p.text
		case kindHTML:
			m.BodyHTML = p.text
		case kindAttachment:
			m.Attachments = append(m.Attachments, p.attachment)
		}
		return false
	})

	m.Snippet = Snippet(m.BodyText)
	m.Auth = ParseAuth(&mr.Header)
	return m, nil
}

func applyFlags(m *Message, flags []string) {
	for _, flag := range flags {
		switch {
		case strings.EqualFold(flag, imap.SeenFlag):
			m.IsRead = true
		case strings.EqualFold(flag, imap.FlaggedFlag):
			m.IsStarred = true
		case strings.EqualFold(flag, imap.DraftFlag):
			m.IsDraft = true
		}
	}
}

func readHeader(m *Message, h *mail.Header) {
	if id, err := h.MessageID(); err == nil {
		m.MessageID = id
	} else {
		m.MessageID = strings.Trim(unfold(h.Get("Message-Id")), "<>")
	}

	if ids := msgIDs(h, "In-Reply-To"); len(ids) > 0 {
		m.InReplyTo = ids[0]
	}
	m.References = strings.Join(msgIDs(h, "References"), " ")

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.FromAddress = from[0].Address
		m.FromName = from[0].Name
	}
	m.To = addressList(h, "To")
	m.Cc = addressList(h, "Cc")
	m.Bcc = addressList(h, "Bcc")
	m.ReplyTo = addressList(h, "Reply-To")

	if subject, err := h.Subject(); err == nil {
		m.Subject = subject
	} else {
		m.Subject = unfold(h.Get("Subject"))
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		m.Date = date.Unix()
	}

	m.ListUnsubscribe = headerText(h, "List-Unsubscribe")
	m.ListUnsubscribePost = headerText(h, "List-Unsubscribe-Post")
	m.AuthResults = headerText(h, "Authentication-Results")
}

// msgIDs returns the ids of a message-id list header, falling back to the
// raw unfolded value when it does not parse.
func msgIDs(h *mail.Header, key string) []string {
	if !h.Has(key) {
		return nil
	}
	ids, err := h.MsgIDList(key)
	if err == nil && len(ids) > 0 {
		return ids
	}
	if raw := unfold(h.Get(key)); raw != "" {
		return []string{raw}
	}
	return nil
}

func addressList(h *mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Address))
		} else {
			parts = append(parts, addr.Address)
		}
	}
	return strings.Join(parts, ", ")
}

func headerText(h *mail.Header, key string) string {
	if text, err := h.Text(key); err == nil {
		return unfold(text)
	}
	return unfold(h.Get(key))
}

func unfold(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// Snippet collapses whitespace in text and cuts it to 200 characters,
// marking the cut with "...".
func Snippet(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= snippetLength {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:snippetLength]) + "..."
}
