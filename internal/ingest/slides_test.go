package ingest

import (
	"strings"
	"testing"
)

func TestSplit_Basic(t *testing.T) {
	deck := `# First slide
some content
---
# Second slide
more content
+++
# Third slide`

	slides, err := Split(strings.NewReader(deck), "deck.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(slides))
	}
	if !strings.Contains(slides[0].Content, "First slide") {
		t.Errorf("slide 0: %q", slides[0].Content)
	}
	if !strings.Contains(slides[1].Content, "Second slide") {
		t.Errorf("slide 1: %q", slides[1].Content)
	}
	for i, slide := range slides {
		if slide.Index != i {
			t.Errorf("slide %d has index %d", i, slide.Index)
		}
		if slide.Source != "deck.md" {
			t.Errorf("slide %d source %q", i, slide.Source)
		}
	}
}

func TestSplit_LineRanges(t *testing.T) {
	deck := "line one\nline two\n---\nline four\n"
	slides, err := Split(strings.NewReader(deck), "deck.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	if slides[0].LineStart != 1 || slides[0].LineEnd != 2 {
		t.Errorf("slide 0 lines (%d, %d)", slides[0].LineStart, slides[0].LineEnd)
	}
	if slides[1].LineStart != 4 || slides[1].LineEnd != 4 {
		t.Errorf("slide 1 lines (%d, %d)", slides[1].LineStart, slides[1].LineEnd)
	}
}

func TestSplit_CollapsesBlankRuns(t *testing.T) {
	deck := "a\n\n\n\nb"
	slides, err := Split(strings.NewReader(deck), "deck.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(slides))
	}
	if slides[0].Content != "a\n\nb" {
		t.Errorf("blank runs not collapsed: %q", slides[0].Content)
	}
}

func TestSplit_DropsEmptySlides(t *testing.T) {
	deck := "---\n---\nonly real slide\n---\n   \n"
	slides, err := Split(strings.NewReader(deck), "deck.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(slides))
	}
	if slides[0].Content != "only real slide" {
		t.Errorf("content: %q", slides[0].Content)
	}
}

func TestSplit_IndentedDelimiter(t *testing.T) {
	deck := "a\n  ---\nb\n"
	slides, err := Split(strings.NewReader(deck), "deck.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(slides) != 2 {
		t.Fatalf("indented delimiter should split, got %d slides", len(slides))
	}
}
