package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWith_AddsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With(String("node", "n1"))

	log.Warn("replication failed", Int("targets", 2))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["node"] != "n1" {
		t.Errorf("node field = %v", fields["node"])
	}
	if fields["targets"] != int64(2) {
		t.Errorf("targets field = %v", fields["targets"])
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("warn") == nil || parseLevel("bogus") != nil {
		t.Error("unexpected parseLevel result")
	}
}
