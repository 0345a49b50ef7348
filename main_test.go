package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/config"
)

func TestPrintBatch(t *testing.T) {
	ts := time.Date(2024, 5, 1, 21, 4, 5, 0, time.Local)
	batch := []chat.Message{
		{ID: "a", DisplayName: "Alice", Timestamp: ts, Content: "hello"},
		{ID: "b", DisplayName: "Bob", Timestamp: ts.Add(time.Second), Content: ""},
	}
	var buf bytes.Buffer
	printBatch(&buf, batch)

	want := "Alice (09:04:05 PM): hello\n\nBob (09:04:06 PM): \n\n"
	if got := buf.String(); got != want {
		t.Fatalf("printBatch output = %q, want %q", got, want)
	}
}

func TestPrintBatchEmpty(t *testing.T) {
	var buf bytes.Buffer
	printBatch(&buf, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name      string
		streamURL string
		channel   string
		wantErr   bool
	}{
		{"url only", "https://www.youtube.com/watch?v=abc", "", false},
		{"channel only", "", "@someone", false},
		{"neither", "", "", true},
		{"both", "https://www.youtube.com/watch?v=abc", "@someone", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTarget(tt.streamURL, tt.channel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateTarget() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--oauth", "--http-addr", ":9000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg := &config.Config{HTTPAddr: ":8080", ArchiveDSN: "chat.db"}
	applyFlags(cmd, cfg, options{forceOAuth: true, httpAddr: ":9000"})

	if !cfg.ForceOAuth {
		t.Error("expected ForceOAuth to be set")
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.ArchiveDSN != "chat.db" {
		t.Errorf("ArchiveDSN = %q, want unchanged chat.db", cfg.ArchiveDSN)
	}
}

func TestRootCmdRejectsMissingTarget(t *testing.T) {
	t.Setenv("YT_API_KEY", "key")
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "stream URL") {
		t.Fatalf("expected missing target error, got %v", err)
	}
}
