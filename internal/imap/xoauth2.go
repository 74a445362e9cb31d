package imap

import "github.com/emersion/go-sasl"

const XOAuth2 = "XOAUTH2"

type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a SASL client that sends the bearer token once
// as its initial response.
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return XOAuth2, ir, nil
}

// Next answers the server's error challenge with an empty response so the
// server can finish with a tagged NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
