package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}

	l := Nop()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("run_id", "abc").Infow("segment done", "index", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "abc" {
		t.Errorf("run_id = %v, want abc", fields["run_id"])
	}
	if fields["index"] != int64(2) {
		t.Errorf("index = %v, want 2", fields["index"])
	}
}
