package imap

import (
	"context"
	"fmt"

	"imapcore/internal/config"

	"github.com/emersion/go-imap"
)

// Service opens a session per call. Connector is swapped out in tests.
type Service struct {
	Connector func(ctx context.Context, cfg config.Config) (Client, error)
	Options   Options
}

func NewService(opts Options) *Service {
	return &Service{Options: opts}
}

func (s *Service) Connect(ctx context.Context, cfg config.Config) (*Session, error) {
	connector := s.Connector
	if connector == nil {
		connector = func(ctx context.Context, cfg config.Config) (Client, error) {
			return Dial(ctx, cfg, s.Options)
		}
	}
	c, err := connector(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSession(c, cfg.IMAP.Host, s.Options.logger()), nil
}

// Do runs fn on a fresh session and logs out afterwards.
func (s *Service) Do(ctx context.Context, cfg config.Config, fn func(*Session) error) error {
	session, err := s.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Logout(context.WithoutCancel(ctx)); err != nil {
			s.Options.logger().Debug("logout failed", "host", cfg.IMAP.Host, "error", err)
		}
	}()
	return fn(session)
}

// TestConnection connects, authenticates, lists folders and logs out.
func (s *Service) TestConnection(ctx context.Context, cfg config.Config) (string, error) {
	var count int
	err := s.Do(ctx, cfg, func(session *Session) error {
		return session.do(ctx, "LIST", "", func(c Client) error {
			infos, err := collect(func(ch chan *imap.MailboxInfo) error {
				return c.List("", "*", ch)
			})
			if err != nil {
				return session.wrap("LIST", "", 0, err)
			}
			count = len(infos)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Connected successfully. Found %d folder(s).", count), nil
}
