package chunk

import (
	"strings"
	"unicode/utf8"
)

// ChunkWithTimestamps greedily accumulates transcript segments into chunks no
// longer than DefaultChunkSize runes, preserving each chunk's time span.
func ChunkWithTimestamps(segments []Segment) []TimedChunk {
	return ChunkWithTimestampsSize(segments, DefaultChunkSize)
}

// ChunkWithTimestampsSize is ChunkWithTimestamps with an explicit window size.
func ChunkWithTimestampsSize(segments []Segment, size int) []TimedChunk {
	var chunks []TimedChunk
	var builder strings.Builder
	var chunkStart, chunkEnd float64
	runeCount := 0
	haveContent := false

	flush := func() {
		if !haveContent {
			return
		}
		chunks = append(chunks, TimedChunk{
			Text:      builder.String(),
			StartTime: chunkStart,
			EndTime:   chunkEnd,
		})
		builder.Reset()
		runeCount = 0
		haveContent = false
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		projected := runeCount
		if haveContent {
			projected += 1 // joining space
		}
		projected += utf8.RuneCountInString(text)

		if haveContent && projected > size {
			flush()
		}

		if !haveContent {
			chunkStart = seg.Start
			builder.WriteString(text)
		} else {
			builder.WriteByte(' ')
			builder.WriteString(text)
		}
		runeCount = utf8.RuneCountInString(builder.String())
		chunkEnd = seg.End
		haveContent = true
	}
	flush()

	return chunks
}
