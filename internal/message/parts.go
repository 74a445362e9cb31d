package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

var ErrPartNotFound = errors.New("attachment part not found")

type partKind int

const (
	kindText partKind = iota
	kindHTML
	kindAttachment
)

type part struct {
	kind       partKind
	text       string
	attachment Attachment
	content    []byte
}

// eachPart walks leaf parts in document order and calls fn once per part;
// fn returns true to stop the walk. Attachment bodies are decoded only to
// count their size unless keep selects the part id, in which case the
// content is handed to fn.
func eachPart(mr *mail.Reader, keep func(partID string) bool, fn func(p *part) bool) error {
	var haveText, haveHTML bool
	count := 0
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !(p != nil && (gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err))) {
			return err
		}

		var h gomessage.Header
		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			h = ph.Header
		case *mail.AttachmentHeader:
			h = ph.Header
		default:
			continue
		}

		declared, _, _ := h.ContentType()
		declared = strings.ToLower(declared)
		mediaType := declared
		if mediaType == "" {
			mediaType = "text/plain"
		}
		disposition, _, _ := h.ContentDisposition()
		disposition = strings.ToLower(disposition)
		ah := mail.AttachmentHeader{Header: h}
		filename, _ := ah.Filename()

		isBody := disposition != "attachment" && filename == ""
		if isBody && ((mediaType == "text/plain" && !haveText) || (mediaType == "text/html" && !haveHTML)) {
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return err
			}
			kind := kindText
			if mediaType == "text/html" {
				kind, haveHTML = kindHTML, true
			} else {
				haveText = true
			}
			if fn(&part{kind: kind, text: string(data)}) {
				return nil
			}
			continue
		}

		count++
		att := Attachment{
			PartID:    strconv.Itoa(count),
			Filename:  filename,
			MIMEType:  declared,
			ContentID: strings.Trim(strings.TrimSpace(h.Get("Content-Id")), "<>"),
			IsInline:  disposition == "inline",
		}
		if att.Filename == "" {
			att.Filename = fallbackFilename
		}
		if att.MIMEType == "" {
			att.MIMEType = fallbackMIMEType
		}

		cur := &part{kind: kindAttachment}
		if keep != nil && keep(att.PartID) {
			cur.content, err = io.ReadAll(p.Body)
			att.Size = int64(len(cur.content))
		} else {
			att.Size, err = io.Copy(io.Discard, p.Body)
		}
		if err != nil {
			return err
		}
		cur.attachment = att
		if fn(cur) {
			return nil
		}
	}
}

// ExtractAttachment returns the decoded content of the attachment that Parse
// numbered partID.
func ExtractAttachment(raw []byte, partID string) (Attachment, []byte, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return Attachment{}, nil, fmt.Errorf("parse message header: %w", err)
	}

	var (
		found Attachment
		data  []byte
		ok    bool
	)
	keep := func(id string) bool { return id == partID }
	walkErr := eachPart(mr, keep, func(p *part) bool {
		if p.kind != kindAttachment || p.attachment.PartID != partID {
			return false
		}
		found, data, ok = p.attachment, p.content, true
		return true
	})
	if ok {
		return found, data, nil
	}
	if walkErr != nil {
		return Attachment{}, nil, fmt.Errorf("read part %s: %w", partID, walkErr)
	}
	return Attachment{}, nil, fmt.Errorf("%w: %s", ErrPartNotFound, partID)
}
