package delivery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSenderFunc(t *testing.T) {
	var got Message
	sender := SenderFunc(func(_ context.Context, msg Message) error {
		got = msg
		return nil
	})

	msg := Message{To: "user@example.com", Subject: "Your login code", Code: "483921"}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got != msg {
		t.Fatalf("delivered %+v, want %+v", got, msg)
	}

	failing := SenderFunc(func(context.Context, Message) error {
		return errors.New("smtp unreachable")
	})
	if err := failing.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error to pass through")
	}
}

func TestLogSenderWritesCode(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(zerolog.New(&buf))

	err := sender.Send(context.Background(), Message{
		To:      "user@example.com",
		Subject: "Your login code",
		Code:    "483921",
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}

	line := buf.String()
	for _, want := range []string{`"to":"user@example.com"`, `"code":"483921"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestSMTPConfigValidation(t *testing.T) {
	valid := smtpConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "noreply@example.com",
	}
	if _, err := newSMTPSender(&valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*smtpConfig)
	}{
		{"missing host", func(c *smtpConfig) { c.Host = "" }},
		{"zero port", func(c *smtpConfig) { c.Port = 0 }},
		{"missing from", func(c *smtpConfig) { c.From = "" }},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if _, err := newSMTPSender(&cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", tc.name)
		}
	}
}

func TestSMTPSenderRequiresRecipient(t *testing.T) {
	sender, err := newSMTPSender(&smtpConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "noreply@example.com",
	})
	if err != nil {
		t.Fatalf("newSMTPSender error: %v", err)
	}

	if err := sender.Send(context.Background(), Message{Code: "483921"}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
