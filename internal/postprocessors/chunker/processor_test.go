package chunker

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.overlap)
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		if p.overlap != 25 {
			t.Errorf("expected overlap reduced to 25, got %d", p.overlap)
		}
	})

	t.Run("zero values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1))
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected default chunkSize, got %d", p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected default overlap, got %d", p.overlap)
		}
	})
}

func TestProcessor_Name(t *testing.T) {
	if got := New().Name(); got != "chunker" {
		t.Errorf("expected name 'chunker', got '%s'", got)
	}
}

func TestProcessor_Split_Empty(t *testing.T) {
	passages, err := New().Split(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("expected no passages for empty text, got %d", len(passages))
	}
}

func TestProcessor_Split_SmallText(t *testing.T) {
	text := "This is a small piece of content."
	passages, err := New(WithChunkSize(100), WithOverlap(20)).Split(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(passages) != 1 || passages[0] != text {
		t.Errorf("expected the text as a single passage, got %q", passages)
	}
}

func TestProcessor_Split_ExactSize(t *testing.T) {
	passages, err := New(WithChunkSize(50), WithOverlap(0)).Split(context.Background(), strings.Repeat("a", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(passages) != 2 {
		t.Errorf("expected 2 passages, got %d", len(passages))
	}
}

func TestProcessor_Split_Overlap(t *testing.T) {
	passages, err := New(WithChunkSize(10), WithOverlap(3)).Split(context.Background(), "0123456789ABCDEFGHIJ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"0123456789", "789ABCDEFG", "EFGHIJ"}
	if len(passages) != len(want) {
		t.Fatalf("expected %d passages, got %d: %q", len(want), len(passages), passages)
	}
	for i := range want {
		if passages[i] != want[i] {
			t.Errorf("passage %d: expected %q, got %q", i, want[i], passages[i])
		}
	}
}

func TestProcessor_Split_MultiByte(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 20)
	passages, err := New(WithChunkSize(7), WithOverlap(2)).Split(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, p := range passages {
		if !utf8.ValidString(p) {
			t.Errorf("passage %d is not valid UTF-8: %q", i, p)
		}
		if n := utf8.RuneCountInString(p); n > 7 {
			t.Errorf("passage %d has %d runes", i, n)
		}
	}
}

func TestProcessor_Split_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(WithChunkSize(5), WithOverlap(0)).Split(ctx, "some text"); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
