package core

import (
	"strconv"
	"testing"

	"github.com/dkeye/SignMeet/internal/domain"
)

func TestCaptionLogNewestFirstAndBounded(t *testing.T) {
	l := NewCaptionLog(3)
	for i := range 5 {
		l.Add(domain.Caption{ID: strconv.Itoa(i)})
	}
	got := l.Snapshot()
	if len(got) != 3 || l.Len() != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, want := range []string{"4", "3", "2"} {
		if got[i].ID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, got[i].ID, want)
		}
	}

	got[0].ID = "mutated"
	if l.Snapshot()[0].ID != "4" {
		t.Fatal("snapshot shares storage with the log")
	}
}

func TestCaptionLogDefaultLimit(t *testing.T) {
	l := NewCaptionLog(0)
	for range CaptionRetention + 10 {
		l.Add(domain.Caption{})
	}
	if l.Len() != CaptionRetention {
		t.Fatalf("len = %d, want %d", l.Len(), CaptionRetention)
	}
}
