package randx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBase62(t *testing.T) {
	s, err := Base62(32)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 32 {
		t.Fatalf("len = %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(Base62Chars, c) {
			t.Fatalf("unexpected character %q", c)
		}
	}
}

func TestMessageIDIsVersion7(t *testing.T) {
	id, err := uuid.Parse(MessageID())
	if err != nil {
		t.Fatal(err)
	}
	if id.Version() != 7 {
		t.Fatalf("version = %d, want 7", id.Version())
	}
}

func TestGuestName(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		name, err := GuestName()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(name, GuestNamePrefix) || len(name) != len(GuestNamePrefix)+GuestNameRawLength {
			t.Fatalf("bad guest name %q", name)
		}
		seen[name] = true
	}
	if len(seen) < 45 {
		t.Fatalf("only %d distinct names out of 50", len(seen))
	}
}

func TestConnectionIDUnique(t *testing.T) {
	if ConnectionID() == ConnectionID() {
		t.Fatal("connection ids collided")
	}
}
