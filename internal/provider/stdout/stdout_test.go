package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shineum/http-email/internal/email"
	"github.com/shineum/http-email/internal/sender"
)

var testProfile = sender.Profile{
	User:     "alerts",
	Email:    "alerts@example.com",
	Host:     "smtp.example.com",
	Port:     587,
	Password: "s3cret-pass",
}

func testMessage() *email.Email {
	return &email.Email{
		From:      "alerts@example.com",
		To:        []string{"alice@example.com", "bob@example.com"},
		Subject:   "Monthly Report",
		Body:      "Please find the report below.",
		MimeType:  "plain",
		Date:      time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC),
		MessageID: "<id@example.com>",
	}
}

func TestSend_BasicEmail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	if err := p.Send(context.Background(), testProfile, testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	for _, want := range []string{
		"Relay: smtp.example.com:587 (user alerts)",
		"From: alerts@example.com",
		"To: alice@example.com, bob@example.com",
		"Subject: Monthly Report",
		"Content-Type: text/plain; charset=utf-8",
		"Message-ID: <id@example.com>",
		"Please find the report below.",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
	if !strings.HasPrefix(output, "========================================\n") {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, "========================================\n") {
		t.Error("output should end with separator line")
	}
}

func TestSend_NeverPrintsPassword(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	if err := p.Send(context.Background(), testProfile, testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), testProfile.Password) {
		t.Errorf("output contains the password:\n%s", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestSend_WriterFailureIsNotDeliveryFailure(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(failingWriter{})
	if err := p.Send(context.Background(), testProfile, testMessage()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	p := New()
	if p.Name() != "stdout" {
		t.Errorf("Name: got %q, want %q", p.Name(), "stdout")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int
		want  string
	}{
		{name: "zero bytes", bytes: 0, want: "0 B"},
		{name: "small bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 46080, want: "45.0 KB"},
		{name: "megabytes", bytes: 1258291, want: "1.2 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := formatSize(tt.bytes)
			if got != tt.want {
				t.Errorf("formatSize(%d): got %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
