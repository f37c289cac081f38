package chunk

import "testing"

func TestChunkWithTimestamps_Empty(t *testing.T) {
	if got := ChunkWithTimestamps(nil); got != nil {
		t.Errorf("expected nil for no segments, got %v", got)
	}
}

func TestChunkWithTimestamps_SkipsEmptySegments(t *testing.T) {
	segments := []Segment{
		{Text: "   ", Start: 0, End: 1},
		{Text: "hello", Start: 1, End: 2},
	}
	chunks := ChunkWithTimestamps(segments)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello" {
		t.Errorf("expected text 'hello', got %q", chunks[0].Text)
	}
}

func TestChunkWithTimestamps_AccumulatesUnderLimit(t *testing.T) {
	segments := []Segment{
		{Text: "one", Start: 0, End: 1},
		{Text: "two", Start: 1, End: 2},
		{Text: "three", Start: 2, End: 3},
	}
	chunks := ChunkWithTimestampsSize(segments, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "one two three" {
		t.Errorf("unexpected joined text: %q", chunks[0].Text)
	}
	if chunks[0].StartTime != 0 || chunks[0].EndTime != 3 {
		t.Errorf("expected span [0,3], got [%v,%v]", chunks[0].StartTime, chunks[0].EndTime)
	}
}

func TestChunkWithTimestamps_FlushesOnOverflow(t *testing.T) {
	segments := []Segment{
		{Text: "aaaaaaaaaa", Start: 0, End: 1}, // 10 chars
		{Text: "bbbbbbbbbb", Start: 1, End: 2}, // 10 chars, total 21 > 15
		{Text: "cccccccccc", Start: 2, End: 3}, // 10 chars, total 21 > 15 again
	}
	chunks := ChunkWithTimestampsSize(segments, 15)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "aaaaaaaaaa" {
		t.Errorf("expected first chunk to be just the first segment, got %q", chunks[0].Text)
	}
	if chunks[0].StartTime != 0 || chunks[0].EndTime != 1 {
		t.Errorf("expected first chunk span [0,1], got [%v,%v]", chunks[0].StartTime, chunks[0].EndTime)
	}
	if chunks[1].StartTime != 1 || chunks[1].EndTime != 2 {
		t.Errorf("expected second chunk span [1,2], got [%v,%v]", chunks[1].StartTime, chunks[1].EndTime)
	}
	if chunks[2].StartTime != 2 || chunks[2].EndTime != 3 {
		t.Errorf("expected third chunk span [2,3], got [%v,%v]", chunks[2].StartTime, chunks[2].EndTime)
	}
}
