package message

import (
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-msgauth/authres"
)

// Aggregate sender-authentication outcomes.
const (
	AuthPass    = "pass"
	AuthWarning = "warning"
	AuthFail    = "fail"
	AuthUnknown = "unknown"
)

type Verdict struct {
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// AuthResult summarizes SPF, DKIM and DMARC outcomes recorded by the
// receiving server.
type AuthResult struct {
	SPF       Verdict `json:"spf"`
	DKIM      Verdict `json:"dkim"`
	DMARC     Verdict `json:"dmarc"`
	Aggregate string  `json:"aggregate"`
}

func unknownVerdict() Verdict {
	return Verdict{Result: AuthUnknown}
}

// ParseAuth reads Authentication-Results, then ARC-Authentication-Results,
// then Received-SPF (SPF only). It returns nil when none is present.
func ParseAuth(h *mail.Header) *AuthResult {
	value := h.Get("Authentication-Results")
	if value == "" {
		value = stripARCInstance(h.Get("Arc-Authentication-Results"))
	}
	receivedSPF := h.Get("Received-Spf")
	if value == "" && receivedSPF == "" {
		return nil
	}

	res := &AuthResult{SPF: unknownVerdict(), DKIM: unknownVerdict(), DMARC: unknownVerdict()}
	if value != "" {
		applyResults(res, unfold(value))
	} else {
		res.SPF = parseReceivedSPF(unfold(receivedSPF))
	}
	res.Aggregate = aggregate(res.SPF.Result, res.DKIM.Result, res.DMARC.Result)
	return res
}

func applyResults(res *AuthResult, value string) {
	_, results, err := authres.Parse(value)
	if err != nil {
		return
	}

	var spf, dmarc *Verdict
	var dkim []Verdict
	for _, r := range results {
		switch r := r.(type) {
		case *authres.SPFResult:
			if spf == nil {
				spf = &Verdict{Result: string(r.Value), Detail: r.Reason}
			}
		case *authres.DKIMResult:
			dkim = append(dkim, Verdict{Result: string(r.Value), Detail: r.Reason})
		case *authres.DMARCResult:
			if dmarc == nil {
				dmarc = &Verdict{Result: string(r.Value), Detail: r.Reason}
			}
		}
	}

	if spf != nil {
		res.SPF = *spf
	}
	if dmarc != nil {
		res.DMARC = *dmarc
	}
	if len(dkim) > 0 {
		// Any passing signature counts.
		res.DKIM = dkim[0]
		for _, v := range dkim {
			if v.Result == AuthPass {
				res.DKIM = v
				break
			}
		}
	}
}

// stripARCInstance drops the leading "i=N;" of an ARC header so the rest
// parses as Authentication-Results.
func stripARCInstance(v string) string {
	trimmed := strings.TrimSpace(v)
	if !strings.HasPrefix(strings.ToLower(trimmed), "i=") {
		return trimmed
	}
	if _, rest, ok := strings.Cut(trimmed, ";"); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// parseReceivedSPF reads "result (comment) key=value...".
func parseReceivedSPF(v string) Verdict {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return unknownVerdict()
	}
	verdict := Verdict{Result: strings.ToLower(strings.TrimRight(fields[0], ";"))}
	if start := strings.Index(v, "("); start >= 0 {
		if end := strings.Index(v[start:], ")"); end > 0 {
			verdict.Detail = strings.TrimSpace(v[start+1 : start+end])
		}
	}
	return verdict
}

func aggregate(spf, dkim, dmarc string) string {
	switch dmarc {
	case AuthPass:
		return AuthPass
	case AuthFail:
		return AuthFail
	}

	failed := func(r string) bool { return r == AuthFail || r == "hardfail" }
	if failed(spf) && failed(dkim) {
		return AuthFail
	}
	if spf == AuthUnknown && dkim == AuthUnknown && dmarc == AuthUnknown {
		return AuthUnknown
	}
	if spf == AuthPass && dkim == AuthPass && dmarc == AuthUnknown {
		return AuthPass
	}
	return AuthWarning
}
