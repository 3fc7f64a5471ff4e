package main

import (
	"testing"
	"time"
)

func TestParseDueDate_RFC3339(t *testing.T) {
	got, err := parseDueDate("2026-09-01T17:00:00Z")
	if err != nil {
		t.Fatalf("parseDueDate() error = %v", err)
	}
	want := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseDueDate() = %v, want %v", got, want)
	}
}

func TestParseDueDate_NaturalLanguage(t *testing.T) {
	got, err := parseDueDate("tomorrow")
	if err != nil {
		t.Fatalf("parseDueDate(tomorrow) error = %v", err)
	}
	if !got.After(time.Now()) {
		t.Errorf("parseDueDate(tomorrow) = %v, want a future time", got)
	}
}

func TestParseDueDate_Rejected(t *testing.T) {
	for _, input := range []string{"", "not a date at all zzz"} {
		if _, err := parseDueDate(input); err == nil {
			t.Errorf("parseDueDate(%q) error = nil, want error", input)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"init", "daemon", "sync", "export", "status", "conflicts",
		"assignments", "ics", "migrate", "loadtest", "version",
	}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}
