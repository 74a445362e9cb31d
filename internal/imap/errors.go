package imap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-imap"
)

// Kind classifies a failure so callers can decide how to react.
type Kind int

const (
	KindProtocol Kind = iota
	KindConfig
	KindTransport
	KindAuth
	KindNotFound
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not found"
	case KindParse:
		return "parse"
	default:
		return "protocol"
	}
}

var ErrSessionClosed = errors.New("imap session closed")

// Error is returned by every session operation.
type Error struct {
	Kind   Kind
	Op     string
	Host   string
	Folder string
	UID    uint32
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Folder != "" {
		fmt.Fprintf(&b, " %s", e.Folder)
	}
	if e.UID != 0 {
		fmt.Fprintf(&b, " uid %d", e.UID)
	}
	if e.Host != "" {
		fmt.Fprintf(&b, " on %s", e.Host)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, or KindProtocol when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProtocol
}

// IsNotFound reports whether err names a missing message or part.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// classify tells a dropped connection apart from a server refusal.
func classify(c Client, err error) Kind {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), errors.As(err, &netErr):
		return KindTransport
	case c != nil && c.State() == imap.LogoutState:
		return KindTransport
	default:
		return KindProtocol
	}
}
