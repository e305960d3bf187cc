package diag

import (
	"errors"
	"testing"
)

func TestNoteAppendsEventAndRespectsBound(t *testing.T) {
	r := NewRecord(2)
	r.Note("split", "rejected: too short")
	r.Note("split", "applied")
	r.Note("collapse", "applied")
	if len(r.Events) != 2 {
		t.Fatalf("expected ring bounded to 2 events, got %d", len(r.Events))
	}
	if r.Events[len(r.Events)-1].Detail != "applied" || r.Events[len(r.Events)-1].Kind != "collapse" {
		t.Fatalf("expected newest event last, got %+v", r.Events)
	}
}

func TestRecoverCapturesPanicAsError(t *testing.T) {
	r := NewRecord(8)
	var err error
	func() {
		defer r.Recover("test-op", &err)
		panic("boom")
	}()
	if err == nil {
		t.Fatal("expected Recover to populate err from the panic")
	}
	if len(r.Events) != 1 || r.Events[0].Kind != "panic" {
		t.Fatalf("expected one panic event, got %+v", r.Events)
	}
	if r.Events[0].PanicStack == "" {
		t.Fatal("expected a captured stack trace")
	}
}

func TestRecoverLeavesErrUntouchedWithoutPanic(t *testing.T) {
	r := NewRecord(8)
	err := errors.New("preexisting")
	func() {
		defer r.Recover("test-op", &err)
	}()
	if err == nil || err.Error() != "preexisting" {
		t.Fatalf("expected err to be left alone, got %v", err)
	}
}

func TestStringSummarizesCounters(t *testing.T) {
	r := NewRecord(0)
	r.CollisionsHandled = 3
	s := r.String()
	if s == "" {
		t.Fatal("expected non-empty summary")
	}
}
