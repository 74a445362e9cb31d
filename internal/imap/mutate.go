package imap

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/emersion/go-imap"
)

// SetFlags adds or removes flags on the messages in uidSet.
func (s *Session) SetFlags(ctx context.Context, folder, uidSet string, op FlagOp, flags []string) error {
	seqset, err := parseUIDSet(uidSet)
	if err != nil {
		return s.fail(KindConfig, "UID STORE", folder, 0, err)
	}
	if len(flags) == 0 {
		return s.fail(KindConfig, "UID STORE", folder, 0, errors.New("no flags given"))
	}

	return s.do(ctx, "UID STORE", folder, func(c Client) error {
		if _, err := selectFolder(s, c, folder); err != nil {
			return err
		}
		opType := imap.FlagsOp(imap.AddFlags)
		if op == RemoveFlags {
			opType = imap.FlagsOp(imap.RemoveFlags)
		}
		return store(s, c, folder, seqset, opType, flags)
	})
}

// Move moves uidSet from src to dest with UID MOVE. Without MOVE, or when
// the server refuses it, the messages are copied, flagged \Deleted and
// expunged. That fallback is not atomic and its EXPUNGE also removes any
// other \Deleted messages in src.
func (s *Session) Move(ctx context.Context, src, uidSet, dest string) error {
	seqset, err := parseUIDSet(uidSet)
	if err != nil {
		return s.fail(KindConfig, "UID MOVE", src, 0, err)
	}

	return s.do(ctx, "UID MOVE", src, func(c Client) error {
		if _, err := selectFolder(s, c, src); err != nil {
			return err
		}
		hasMove, err := c.Support("MOVE")
		if err != nil {
			return s.wrap("CAPABILITY", src, 0, err)
		}
		// UidMove copies on its own when MOVE is missing, so the copy
		// below must be the only fallback.
		if hasMove {
			err := c.UidMove(seqset, dest)
			if err == nil {
				return nil
			}
			if classify(c, err) == KindTransport {
				return s.wrap("UID MOVE", src, 0, err)
			}
			s.log.Debug("move refused, falling back to copy", "folder", src, "dest", dest, "error", err)
		}

		if err := c.UidCopy(seqset, dest); err != nil {
			return s.wrap("UID COPY", src, 0, err)
		}
		if err := store(s, c, src, seqset, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
			return err
		}
		return expunge(s, c, src)
	})
}

// Delete flags uidSet \Deleted and expunges the folder.
func (s *Session) Delete(ctx context.Context, folder, uidSet string) error {
	seqset, err := parseUIDSet(uidSet)
	if err != nil {
		return s.fail(KindConfig, "UID STORE", folder, 0, err)
	}

	return s.do(ctx, "EXPUNGE", folder, func(c Client) error {
		if _, err := selectFolder(s, c, folder); err != nil {
			return err
		}
		if err := store(s, c, folder, seqset, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
			return err
		}
		return expunge(s, c, folder)
	})
}

// Append stores raw in folder with the given flags. The folder is not
// selected.
func (s *Session) Append(ctx context.Context, folder string, flags []string, raw []byte) error {
	return s.do(ctx, "APPEND", folder, func(c Client) error {
		if err := c.Append(folder, flags, time.Time{}, bytes.NewReader(raw)); err != nil {
			return s.wrap("APPEND", folder, 0, err)
		}
		return nil
	})
}

func store(s *Session, c Client, folder string, seqset *imap.SeqSet, op imap.FlagsOp, flags []string) error {
	values := make([]interface{}, len(flags))
	for i, flag := range flags {
		values[i] = flag
	}
	item := imap.FormatFlagsOp(op, false)
	if _, err := collect(func(ch chan *imap.Message) error {
		return c.UidStore(seqset, item, values, ch)
	}); err != nil {
		return s.wrap("UID STORE", folder, 0, err)
	}
	return nil
}

func expunge(s *Session, c Client, folder string) error {
	if _, err := collect(func(ch chan uint32) error {
		return c.Expunge(ch)
	}); err != nil {
		return s.wrap("EXPUNGE", folder, 0, err)
	}
	return nil
}
