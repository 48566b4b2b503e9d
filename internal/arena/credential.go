package arena

import "strings"

// AnonymousToken is the sentinel the credential provider hands over when
// no user is signed in. Live updates are unavailable in that mode and the
// engine falls back to periodic refetch.
const AnonymousToken = "anonymous"

// Credential is an opaque bearer token. The engine only checks presence
// and the anonymous sentinel, never the contents.
type Credential struct {
	token string
}

func NewCredential(token string) Credential {
	return Credential{token: strings.TrimSpace(token)}
}

func Anonymous() Credential { return Credential{token: AnonymousToken} }

func (c Credential) Anonymous() bool {
	return c.token == "" || strings.EqualFold(c.token, AnonymousToken)
}

func (c Credential) Token() string { return c.token }
