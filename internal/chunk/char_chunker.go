package chunk

import (
	"strings"
	"unicode"
)

// sentenceEnders are sentence-final punctuation marks, Japanese and Western.
var sentenceEnders = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'.': true,
	'!': true,
	'?': true,
}

// ChunkText splits normalized text into overlapping windows of
// DefaultChunkSize runes with DefaultChunkOverlap overlap.
func ChunkText(text string) []TextChunk {
	return ChunkTextSize(text, DefaultChunkSize, DefaultChunkOverlap)
}

// ChunkTextSize splits text using the given window size and overlap, both in
// runes. Text shorter than size is returned as a single chunk. Empty or
// whitespace-only input returns nil.
func ChunkTextSize(text string, size, overlap int) []TextChunk {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	length := len(runes)
	if length <= size {
		return []TextChunk{{Text: string(runes), Start: 0, End: length}}
	}

	var chunks []TextChunk
	start := 0
	for start < length {
		end := start + size
		if end >= length {
			chunks = append(chunks, TextChunk{Text: string(runes[start:length]), Start: start, End: length})
			break
		}

		split := findSplitPoint(runes, start, end, size)
		chunks = append(chunks, TextChunk{Text: string(runes[start:split]), Start: start, End: split})

		next := split - overlap
		if next <= start {
			next = start + 1 // guarantee forward progress
		}
		start = next
	}
	return chunks
}

// findSplitPoint searches backward from end, within the final 20% of the
// window [start, end), for a natural break: sentence-ending punctuation
// (preferred), then the last newline, then the last space. Falls back to end.
func findSplitPoint(runes []rune, start, end, size int) int {
	searchFrom := end - size/5
	if searchFrom < start {
		searchFrom = start
	}

	for i := end - 1; i >= searchFrom; i-- {
		if sentenceEnders[runes[i]] {
			j := i + 1
			for j < end && unicode.IsSpace(runes[j]) {
				j++
			}
			return j
		}
	}
	for i := end - 1; i >= searchFrom; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= searchFrom; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}
