package reconcile

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/dshills/coalesce/internal/crdt"
)

func newSourceText(t *testing.T, content string) *crdt.Text {
	t.Helper()
	tree := crdt.NewTree()
	txt := tree.GetText("source")
	if content != "" {
		if err := txt.Insert(0, content); err != nil {
			t.Fatalf("seeding text: %v", err)
		}
	}
	return txt
}

func TestTextRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		current string
		desired string
	}{
		{"identical", "hello", "hello"},
		{"small edit", "hello world", "hello there"},
		{"rewrite", "aaaa", "zzzzzzzz"},
		{"from empty", "", "fresh content"},
		{"to empty", "old content", ""},
		{"unicode edit", "héllo wörld", "héllo wérld"},
		{"emoji", "status: 👍", "status: 👎"},
		{"multiline", "a\nb\nc\n", "a\nB\nc\nd\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txt := newSourceText(t, tt.current)
			if _, err := Text(txt, tt.desired); err != nil {
				t.Fatalf("Text() error = %v", err)
			}
			if got := txt.String(); got != tt.desired {
				t.Errorf("content = %q, want %q", got, tt.desired)
			}
		})
	}
}

func TestTextNoOpIsSilent(t *testing.T) {
	txt := newSourceText(t, "unchanged")

	fired := 0
	txt.Observe(func(crdt.Event) { fired++ })

	applied, err := Text(txt, "unchanged")
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if applied {
		t.Error("applied = true for identical content")
	}
	if fired != 0 {
		t.Errorf("observer fired %d times, want 0", fired)
	}
}

func TestTextGranularKeepsSharedContent(t *testing.T) {
	// Similar strings must not be rewritten wholesale: the edit script
	// must mix retained and changed ranges rather than clear everything.
	txt := newSourceText(t, "the quick brown fox jumps")

	var events []crdt.Event
	txt.Observe(func(ev crdt.Event) { events = append(events, ev) })

	applied, err := Text(txt, "the quick red fox jumps")
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !applied {
		t.Fatal("applied = false")
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	for _, edit := range events[0].Edits {
		if edit.Op == crdt.EditDelete && edit.Index == 0 && edit.Length == len("the quick brown fox jumps") {
			t.Errorf("full-length delete in granular mode: %v", events[0].Edits)
		}
	}
}

func TestTextHardReplaceBelowCutoff(t *testing.T) {
	current := "aaaaaaaaaaaaaaaaaaaa"
	desired := "zzzzzzzzzzzzzzzzzzzz"
	txt := newSourceText(t, current)

	var events []crdt.Event
	txt.Observe(func(ev crdt.Event) { events = append(events, ev) })

	if _, err := Text(txt, desired); err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := []crdt.Edit{
		{Op: crdt.EditDelete, Index: 0, Length: len(current)},
		{Op: crdt.EditInsert, Index: 0, Length: len(desired)},
	}
	if !reflect.DeepEqual(events[0].Edits, want) {
		t.Errorf("Edits = %v, want single delete+insert pair %v", events[0].Edits, want)
	}
	if got := txt.String(); got != desired {
		t.Errorf("content = %q, want %q", got, desired)
	}
}

func TestTextYieldDriverEquivalence(t *testing.T) {
	current := strings.Repeat("line one\nline two\nline three\n", 20)
	desired := strings.Repeat("line one\nline 2\nline three\n", 20) + "tail\n"

	syncTxt := newSourceText(t, current)
	var syncEvents []crdt.Event
	syncTxt.Observe(func(ev crdt.Event) { syncEvents = append(syncEvents, ev) })
	if _, err := NewText(syncTxt, desired).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	yieldTxt := newSourceText(t, current)
	var yieldEvents []crdt.Event
	yieldTxt.Observe(func(ev crdt.Event) { yieldEvents = append(yieldEvents, ev) })
	steps := 0
	_, err := NewText(yieldTxt, desired).RunYield(context.Background(), func(context.Context) error {
		steps++
		return nil
	})
	if err != nil {
		t.Fatalf("RunYield() error = %v", err)
	}

	if syncTxt.String() != yieldTxt.String() {
		t.Errorf("drivers diverged: %q vs %q", syncTxt.String(), yieldTxt.String())
	}
	if !reflect.DeepEqual(syncEvents, yieldEvents) {
		t.Errorf("driver notifications differ:\nsync:  %v\nyield: %v", syncEvents, yieldEvents)
	}
	if steps < 2 {
		t.Errorf("yield driver took %d steps, want several", steps)
	}
}

func TestTextCancellationKeepsValidState(t *testing.T) {
	txt := newSourceText(t, "abcdefghij")

	ctx, cancel := context.WithCancel(context.Background())
	yields := 0
	_, err := NewText(txt, "abXdefghiY").RunYield(ctx, func(context.Context) error {
		yields++
		if yields == 1 {
			cancel()
		}
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("RunYield() error = %v, want context.Canceled", err)
	}
	// Whatever was applied committed; the handle must still hold valid
	// UTF-8 addressable content.
	if got := txt.String(); !strings.HasPrefix(got, "ab") {
		t.Errorf("content = %q lost committed prefix", got)
	}
}

func TestTextDetached(t *testing.T) {
	loose := crdt.NewText("x")
	if _, err := Text(loose, "y"); err != ErrNotAttached {
		t.Errorf("Text() error = %v, want ErrNotAttached", err)
	}
}
