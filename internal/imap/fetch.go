package imap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"imapcore/internal/message"

	"github.com/emersion/go-imap"
)

// FetchMessages fetches and normalizes the messages in uidRange. Responses
// without a UID or body, and bodies that fail to parse, are skipped.
func (s *Session) FetchMessages(ctx context.Context, folder, uidRange string) (*FetchResult, error) {
	seqset, err := parseUIDSet(uidRange)
	if err != nil {
		return nil, s.fail(KindConfig, "UID FETCH", folder, 0, err)
	}

	result := &FetchResult{Messages: []*message.Message{}}
	err = s.do(ctx, "UID FETCH", folder, func(c Client) error {
		status, err := selectFolder(s, c, folder)
		if err != nil {
			return err
		}
		result.Status = selectedStatus(folder, status)

		section := &imap.BodySectionName{Peek: true}
		msgs, err := collect(func(ch chan *imap.Message) error {
			return c.UidFetch(seqset, fetchItems(section), ch)
		})
		if err != nil {
			return s.wrap("UID FETCH", folder, 0, err)
		}

		for _, msg := range msgs {
			if msg == nil || msg.Uid == 0 {
				s.log.Warn("fetch response without uid", "folder", folder)
				continue
			}
			parsed, err := normalize(msg, section, folder)
			if err != nil {
				s.log.Warn("skipping message", "folder", folder, "uid", msg.Uid, "error", err)
				continue
			}
			result.Messages = append(result.Messages, parsed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FetchMessage fetches one message by UID.
func (s *Session) FetchMessage(ctx context.Context, folder string, uid uint32) (*message.Message, error) {
	var parsed *message.Message
	err := s.do(ctx, "UID FETCH", folder, func(c Client) error {
		section := &imap.BodySectionName{Peek: true}
		msg, err := fetchOne(s, c, folder, uid, section)
		if err != nil {
			return err
		}
		parsed, err = normalize(msg, section, folder)
		if errors.Is(err, errNoBody) {
			return s.fail(KindNotFound, "UID FETCH", folder, uid, err)
		}
		if err != nil {
			return s.fail(KindParse, "UID FETCH", folder, uid, err)
		}
		return nil
	})
	return parsed, err
}

// FetchRaw returns the unparsed bytes of one message.
func (s *Session) FetchRaw(ctx context.Context, folder string, uid uint32) ([]byte, error) {
	var raw []byte
	err := s.do(ctx, "UID FETCH", folder, func(c Client) error {
		section := &imap.BodySectionName{Peek: true}
		msg, err := fetchOne(s, c, folder, uid, section)
		if err != nil {
			return err
		}
		raw, err = readBody(msg, section)
		if err != nil {
			return s.fail(KindNotFound, "UID FETCH", folder, uid, err)
		}
		return nil
	})
	return raw, err
}

// FetchPart fetches one body section (for example "1.2" or "2.MIME") and
// returns it base64 encoded.
func (s *Session) FetchPart(ctx context.Context, folder string, uid uint32, part string) (string, error) {
	section, err := imap.ParseBodySectionName(imap.FetchItem("BODY.PEEK[" + part + "]"))
	if err != nil {
		return "", s.fail(KindConfig, "UID FETCH", folder, uid, fmt.Errorf("invalid section %q: %w", part, err))
	}

	var encoded string
	err = s.do(ctx, "UID FETCH", folder, func(c Client) error {
		msg, err := fetchOne(s, c, folder, uid, section)
		if err != nil {
			return err
		}
		data, err := readBody(msg, section)
		if err != nil {
			return s.fail(KindNotFound, "UID FETCH", folder, uid, fmt.Errorf("section %s: %w", part, err))
		}
		encoded = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	return encoded, err
}

// FetchAttachment fetches a message and returns the attachment that the
// normalizer numbered partID, decoded and base64 encoded.
func (s *Session) FetchAttachment(ctx context.Context, folder string, uid uint32, partID string) (message.Attachment, string, error) {
	raw, err := s.FetchRaw(ctx, folder, uid)
	if err != nil {
		return message.Attachment{}, "", err
	}
	att, data, err := message.ExtractAttachment(raw, partID)
	if errors.Is(err, message.ErrPartNotFound) {
		return message.Attachment{}, "", s.fail(KindNotFound, "UID FETCH", folder, uid, err)
	}
	if err != nil {
		return message.Attachment{}, "", s.fail(KindParse, "UID FETCH", folder, uid, err)
	}
	return att, base64.StdEncoding.EncodeToString(data), nil
}

// NewUIDs returns the UIDs above lastUID in ascending order. Servers answer
// "n:*" with the highest UID even when it is below n, so results are
// filtered.
func (s *Session) NewUIDs(ctx context.Context, folder string, lastUID uint32) ([]uint32, error) {
	uids := []uint32{}
	if lastUID == math.MaxUint32 {
		return uids, nil
	}
	err := s.do(ctx, "UID SEARCH", folder, func(c Client) error {
		if _, err := selectFolder(s, c, folder); err != nil {
			return err
		}
		criteria := imap.NewSearchCriteria()
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(lastUID+1, 0)
		found, err := c.UidSearch(criteria)
		if err != nil {
			return s.wrap("UID SEARCH", folder, 0, err)
		}
		for _, uid := range found {
			if uid > lastUID {
				uids = append(uids, uid)
			}
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		return nil
	})
	return uids, err
}

// AllUIDs returns every UID in folder in ascending order.
func (s *Session) AllUIDs(ctx context.Context, folder string) ([]uint32, error) {
	var uids []uint32
	err := s.do(ctx, "UID SEARCH", folder, func(c Client) error {
		if _, err := selectFolder(s, c, folder); err != nil {
			return err
		}
		found, err := c.UidSearch(imap.NewSearchCriteria())
		if err != nil {
			return s.wrap("UID SEARCH", folder, 0, err)
		}
		uids = append([]uint32{}, found...)
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		return nil
	})
	return uids, err
}

var errNoBody = errors.New("message body not available")

func selectFolder(s *Session, c Client, folder string) (*imap.MailboxStatus, error) {
	status, err := c.Select(folder, false)
	if err != nil {
		return nil, s.wrap("SELECT", folder, 0, err)
	}
	return status, nil
}

func fetchItems(section *imap.BodySectionName) []imap.FetchItem {
	return []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		section.FetchItem(),
	}
}

// fetchOne selects folder and fetches a single UID, mapping an empty answer
// to KindNotFound.
func fetchOne(s *Session, c Client, folder string, uid uint32, section *imap.BodySectionName) (*imap.Message, error) {
	if _, err := selectFolder(s, c, folder); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	msgs, err := collect(func(ch chan *imap.Message) error {
		return c.UidFetch(seqset, fetchItems(section), ch)
	})
	if err != nil {
		return nil, s.wrap("UID FETCH", folder, uid, err)
	}
	for _, msg := range msgs {
		if msg != nil && msg.Uid == uid {
			return msg, nil
		}
	}
	return nil, s.fail(KindNotFound, "UID FETCH", folder, uid, fmt.Errorf("message %d not found", uid))
}

func readBody(msg *imap.Message, section *imap.BodySectionName) ([]byte, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, errNoBody
	}
	return io.ReadAll(body)
}

func normalize(msg *imap.Message, section *imap.BodySectionName, folder string) (*message.Message, error) {
	raw, err := readBody(msg, section)
	if err != nil {
		return nil, err
	}
	return message.Parse(raw, message.Meta{
		UID:    msg.Uid,
		Folder: folder,
		Flags:  msg.Flags,
		Size:   msg.Size,
	})
}
