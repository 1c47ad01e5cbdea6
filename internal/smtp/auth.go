package smtp

import (
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
)

// Supported SASL mechanisms, in order of preference.
const (
	mechPlain = "PLAIN"
	mechLogin = "LOGIN"
)

// Authenticator holds the credentials presented with SMTP AUTH.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If both username and password are empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// SASLClient returns a client for the preferred mechanism found in the
// server's AUTH capability, e.g. "PLAIN LOGIN CRAM-MD5".
func (a *Authenticator) SASLClient(advertised string) (sasl.Client, error) {
	offered := make(map[string]bool)
	for _, mech := range strings.Fields(strings.ToUpper(advertised)) {
		offered[mech] = true
	}

	switch {
	case offered[mechPlain]:
		return sasl.NewPlainClient("", a.username, a.password), nil
	case offered[mechLogin]:
		return sasl.NewLoginClient(a.username, a.password), nil
	default:
		return nil, fmt.Errorf("no supported AUTH mechanism in %q", advertised)
	}
}
