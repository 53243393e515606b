package smtptest

import (
	"encoding/base64"
	"testing"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestAuthenticator_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "both set", username: "user", password: "pass", want: true},
		{name: "empty username", username: "", password: "pass", want: false},
		{name: "empty password", username: "user", password: "", want: false},
		{name: "both empty", username: "", password: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newAuthenticator(tt.username, tt.password)
			if got := a.enabled(); got != tt.want {
				t.Errorf("enabled(): got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_VerifyPlain(t *testing.T) {
	t.Parallel()

	a := newAuthenticator("alerts@example.com", "s3cret")

	tests := []struct {
		name     string
		encoded  string
		wantUser string
		wantErr  bool
	}{
		{name: "success", encoded: b64("\x00alerts@example.com\x00s3cret"), wantUser: "alerts@example.com"},
		{name: "with authzid", encoded: b64("admin\x00alerts@example.com\x00s3cret"), wantUser: "alerts@example.com"},
		{name: "wrong password", encoded: b64("\x00alerts@example.com\x00nope"), wantUser: "alerts@example.com", wantErr: true},
		{name: "wrong username", encoded: b64("\x00other@example.com\x00s3cret"), wantUser: "other@example.com", wantErr: true},
		{name: "invalid base64", encoded: "!!!", wantErr: true},
		{name: "invalid format", encoded: b64("alerts@example.com"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user, err := a.verifyPlain(tt.encoded)
			if (err != nil) != tt.wantErr {
				t.Fatalf("verifyPlain: got error %v, wantErr %v", err, tt.wantErr)
			}
			if user != tt.wantUser {
				t.Errorf("user: got %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestAuthenticator_VerifyLogin(t *testing.T) {
	t.Parallel()

	a := newAuthenticator("alerts@example.com", "s3cret")

	tests := []struct {
		name    string
		user    string
		pass    string
		wantErr bool
	}{
		{name: "success", user: b64("alerts@example.com"), pass: b64("s3cret")},
		{name: "wrong password", user: b64("alerts@example.com"), pass: b64("nope"), wantErr: true},
		{name: "invalid base64 user", user: "!!!", pass: b64("s3cret"), wantErr: true},
		{name: "invalid base64 pass", user: b64("alerts@example.com"), pass: "!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := a.verifyLogin(tt.user, tt.pass)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyLogin: got error %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
