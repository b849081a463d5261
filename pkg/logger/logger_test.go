package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_FirstCallWins(t *testing.T) {
	var first, second bytes.Buffer
	Init(Options{Level: "debug", Output: &first, Service: "identity-api"})
	l := Init(Options{Level: "error", Output: &second})

	l.Debug().Msg("hello")

	if second.Len() != 0 {
		t.Fatalf("second Init should have no effect")
	}

	var entry map[string]any
	if err := json.Unmarshal(first.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line: %v (%q)", err, first.String())
	}
	if entry["service"] != "identity-api" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Options{Output: &buf}), "auth")
	l.Info().Msg("x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["component"] != "auth" {
		t.Fatalf("expected component field, got %v", entry["component"])
	}
}
