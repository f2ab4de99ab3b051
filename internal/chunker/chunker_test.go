package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNewSplitter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 1000, 100, false},
		{"zero_overlap", 1000, 0, false},
		{"zero_size", 0, 0, true},
		{"negative_size", -1, 0, true},
		{"negative_overlap", 100, -1, true},
		{"overlap_equals_size", 100, 100, true},
		{"overlap_exceeds_size", 100, 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSplitter(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	s, _ := NewSplitter(1000, 100)
	if chunks := s.Split("doc", ""); len(chunks) != 0 {
		t.Errorf("empty text should yield no chunks, got %d", len(chunks))
	}
}

func TestSplit_ShortText(t *testing.T) {
	s, _ := NewSplitter(1000, 100)
	chunks := s.Split("doc", "a short document")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != "a short document" || c.Start != 0 || c.End != 16 || c.Index != 0 {
		t.Errorf("unexpected chunk: %+v", c)
	}
}

func TestSplit_FixedWindowScenario(t *testing.T) {
	// 10,000 boundary-free characters with size=1000, overlap=100:
	// hard cuts every 900 runes, 11 chunks total.
	text := strings.Repeat("a", 10000)
	s, _ := NewSplitter(1000, 100)
	chunks := s.Split("manual.pdf", text)

	if len(chunks) != 11 {
		t.Fatalf("expected 11 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		wantStart := i * 900
		wantEnd := wantStart + 1000
		if c.Start != wantStart || c.End != wantEnd {
			t.Errorf("chunk %d: offsets [%d,%d), want [%d,%d)", i, c.Start, c.End, wantStart, wantEnd)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	s, _ := NewSplitter(500, 50)

	first := s.Split("doc", text)
	second := s.Split("doc", text)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated splits of identical input differ")
	}
}

func TestSplit_OffsetsMonotoneAndOverlapBounded(t *testing.T) {
	text := strings.Repeat("Sentence one here. Another sentence follows! Is this a question? ", 100)
	s, _ := NewSplitter(300, 60)
	chunks := s.Split("doc", text)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.Start < prev.Start {
			t.Errorf("chunk %d start %d precedes chunk %d start %d", i, cur.Start, i-1, prev.Start)
		}
		if overlap := prev.End - cur.Start; overlap > 60 {
			t.Errorf("chunks %d/%d overlap by %d runes, limit 60", i-1, i, overlap)
		}
		if cur.Index != prev.Index+1 {
			t.Errorf("chunk indexes not sequential: %d then %d", prev.Index, cur.Index)
		}
	}
}

func TestSplit_AvoidsMidWordCuts(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon ", 100)
	s, _ := NewSplitter(100, 20)
	chunks := s.Split("doc", text)

	runes := []rune(text)
	for i, c := range chunks[:len(chunks)-1] {
		if c.End < len(runes) {
			prev, next := runes[c.End-1], runes[c.End]
			if prev != ' ' && next != ' ' {
				t.Errorf("chunk %d ends mid-word at offset %d: %q|%q", i, c.End, prev, next)
			}
		}
	}
}

func TestSplit_CoversAllText(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 50)
	s, _ := NewSplitter(120, 30)
	chunks := s.Split("doc", text)

	if chunks[0].Start != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].Start)
	}
	if last := chunks[len(chunks)-1]; last.End != len([]rune(text)) {
		t.Errorf("last chunk ends at %d, want %d", last.End, len([]rune(text)))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start > chunks[i-1].End {
			t.Errorf("gap between chunk %d (end %d) and chunk %d (start %d)",
				i-1, chunks[i-1].End, i, chunks[i].Start)
		}
	}
}

func TestChunkID_NamespacedByDocument(t *testing.T) {
	a := Chunk{DocumentID: "doc-a", Index: 0}
	b := Chunk{DocumentID: "doc-b", Index: 0}
	if a.ID() == b.ID() {
		t.Errorf("chunk ids collide across documents: %s", a.ID())
	}
	if a.ID() != "doc-a:0" {
		t.Errorf("unexpected id format: %s", a.ID())
	}
}
