package smtptest

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// authenticator verifies SMTP AUTH exchanges against one configured account.
type authenticator struct {
	username string
	password string
}

func newAuthenticator(username, password string) *authenticator {
	return &authenticator{
		username: username,
		password: password,
	}
}

// enabled reports whether AUTH is required before MAIL.
func (a *authenticator) enabled() bool {
	return a.username != "" && a.password != ""
}

// verifyPlain decodes base64(authzid\0authcid\0password) and returns the
// authenticated user.
func (a *authenticator) verifyPlain(encoded string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 encoding")
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid AUTH PLAIN format")
	}

	return parts[1], a.check(parts[1], parts[2])
}

// verifyLogin checks base64-encoded AUTH LOGIN answers.
func (a *authenticator) verifyLogin(encodedUser, encodedPass string) (string, error) {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return "", fmt.Errorf("invalid base64 username")
	}

	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return "", fmt.Errorf("invalid base64 password")
	}

	return string(user), a.check(string(user), string(pass))
}

func (a *authenticator) check(user, pass string) error {
	if user != a.username || pass != a.password {
		return fmt.Errorf("authentication failed")
	}
	return nil
}
