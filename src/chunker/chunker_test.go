package chunker

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedCounter approximates ~4 chars per token, deterministically, so tests
// do not depend on a tokenizer being loadable.
type fixedCounter struct{}

func (fixedCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func TestChunker_TextLosslessReconstruction(t *testing.T) {
	c := NewChunker(fixedCounter{})

	var b strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "2024-05-01T12:%02d:00Z host%d sshd[%d]: Failed password for invalid user admin from 10.0.0.%d\n", i%60, i, 1000+i, i%250)
	}
	input := b.String()

	res := c.Chunk(input, 300, 50)
	require.Greater(t, len(res.Chunks), 1)
	assert.Equal(t, StrategyText, res.Strategy)
	assert.False(t, res.Degraded)

	var rebuilt strings.Builder
	for i, chunk := range res.Chunks {
		assert.Equal(t, i, chunk.Index)
		rebuilt.WriteString(chunk.Text[chunk.OverlapLen:])
	}
	assert.Equal(t, input, rebuilt.String())
}

func TestChunker_TextRespectsBudget(t *testing.T) {
	c := NewChunker(fixedCounter{})

	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "short log line number %d\n", i)
	}

	res := c.Chunk(b.String(), 100, 0)
	for _, chunk := range res.Chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 100, "chunk %d over budget", chunk.Index)
		assert.False(t, chunk.OverBudget)
	}
}

func TestChunker_OversizedLineSplitsOnSentences(t *testing.T) {
	c := NewChunker(fixedCounter{})

	// One very long line with sentence boundaries: must split, not be lost.
	line := strings.Repeat("The firewall dropped a packet. ", 100) + "\n"
	res := c.Chunk(line, 50, 0)

	require.Greater(t, len(res.Chunks), 1)
	var rebuilt strings.Builder
	for _, chunk := range res.Chunks {
		rebuilt.WriteString(chunk.Text[chunk.OverlapLen:])
	}
	assert.Equal(t, line, rebuilt.String())
}

func TestChunker_OversizedLineWithoutSentences(t *testing.T) {
	c := NewChunker(fixedCounter{})

	// No sentence punctuation anywhere: the raw line is emitted alone and
	// flagged rather than truncated.
	line := strings.Repeat("AAAA", 200)
	res := c.Chunk(line, 50, 0)

	require.Len(t, res.Chunks, 1)
	assert.True(t, res.Chunks[0].OverBudget)
	assert.Equal(t, line, res.Chunks[0].Text)
}

func TestChunker_TextOverlapCarried(t *testing.T) {
	c := NewChunker(fixedCounter{})

	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "line %03d\n", i)
	}

	res := c.Chunk(b.String(), 50, 10)
	require.Greater(t, len(res.Chunks), 1)

	for i := 1; i < len(res.Chunks); i++ {
		chunk := res.Chunks[i]
		require.Greater(t, chunk.OverlapLen, 0, "chunk %d missing overlap", i)
		overlap := chunk.Text[:chunk.OverlapLen]
		assert.True(t, strings.HasSuffix(res.Chunks[i-1].Text, overlap),
			"chunk %d overlap is not the previous chunk's tail", i)
	}
}

func TestChunker_JSONSetReconstruction(t *testing.T) {
	c := NewChunker(fixedCounter{})

	type event struct {
		ID     int    `json:"id"`
		Source string `json:"source"`
	}
	var events []event
	for i := 0; i < 120; i++ {
		events = append(events, event{ID: i, Source: fmt.Sprintf("sensor-%d", i%7)})
	}
	raw, err := json.Marshal(events)
	require.NoError(t, err)

	res := c.Chunk(string(raw), 100, 0)
	require.Greater(t, len(res.Chunks), 1)
	assert.Equal(t, StrategyJSON, res.Strategy)

	seen := make(map[int]bool)
	for _, chunk := range res.Chunks {
		var got []event
		require.NoError(t, json.Unmarshal([]byte(chunk.Text), &got), "chunk %d is not valid JSON", chunk.Index)
		for _, e := range got {
			seen[e.ID] = true
		}
		require.NotNil(t, chunk.ObjectRange)
	}
	assert.Len(t, seen, 120, "some objects were lost across chunks")
}

func TestChunker_JSONObjectNeverSplit(t *testing.T) {
	c := NewChunker(fixedCounter{})

	big := map[string]string{"payload": strings.Repeat("x", 2000)}
	small := map[string]string{"payload": "tiny"}
	raw, err := json.Marshal([]any{small, big, small})
	require.NoError(t, err)

	res := c.Chunk(string(raw), 100, 0)

	overBudget := 0
	for _, chunk := range res.Chunks {
		var got []map[string]string
		require.NoError(t, json.Unmarshal([]byte(chunk.Text), &got))
		if chunk.OverBudget {
			overBudget++
		}
	}
	assert.Equal(t, 1, overBudget, "the oversized object should be its own flagged chunk")
	assert.NotEmpty(t, res.Warnings)
}

func TestChunker_JSONOverlapObjects(t *testing.T) {
	c := NewChunker(fixedCounter{})

	var events []map[string]int
	for i := 0; i < 60; i++ {
		events = append(events, map[string]int{"id": i})
	}
	raw, _ := json.Marshal(events)

	res := c.Chunk(string(raw), 50, 0)
	require.Greater(t, len(res.Chunks), 1)

	// Consecutive chunks share trailing objects for continuity, and the
	// object ranges still tile the input without gaps.
	prevEnd := 0
	for _, chunk := range res.Chunks {
		require.NotNil(t, chunk.ObjectRange)
		assert.Equal(t, prevEnd, chunk.ObjectRange.Start)
		prevEnd = chunk.ObjectRange.End
	}
	assert.Equal(t, 60, prevEnd)
}

func TestChunker_MetadataHeaderRepeated(t *testing.T) {
	c := NewChunker(fixedCounter{})

	header := "Query: SigninLogs | where ResultType != 0\nWorkspace: prod-sentinel"
	var events []map[string]int
	for i := 0; i < 80; i++ {
		events = append(events, map[string]int{"row": i})
	}
	raw, _ := json.Marshal(events)
	input := header + "\n" + string(raw)

	res := c.Chunk(input, 80, 0)
	require.Greater(t, len(res.Chunks), 1)
	assert.Equal(t, StrategyJSON, res.Strategy)

	for _, chunk := range res.Chunks {
		assert.True(t, strings.HasPrefix(chunk.Text, header+"\n"),
			"chunk %d missing metadata header", chunk.Index)
	}
}

func TestChunker_InvalidJSONFallsBackDegraded(t *testing.T) {
	c := NewChunker(fixedCounter{})

	input := "[{\"id\": 1}, {\"id\": 2}" // truncated array
	res := c.Chunk(input, 100, 0)

	assert.Equal(t, StrategyText, res.Strategy)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Warnings)

	var rebuilt strings.Builder
	for _, chunk := range res.Chunks {
		rebuilt.WriteString(chunk.Text[chunk.OverlapLen:])
	}
	assert.Equal(t, input, rebuilt.String())
}

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(fixedCounter{})

	res := c.Chunk("", 1000, 100)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "", res.Chunks[0].Text)
	assert.Equal(t, 0, res.Chunks[0].TokenCount)
}

func TestChunker_SingleChunkWhenUnderBudget(t *testing.T) {
	c := NewChunker(fixedCounter{})

	input := "one small log line\nanother small log line\n"
	res := c.Chunk(input, 10000, 100)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, input, res.Chunks[0].Text)
	assert.Zero(t, res.Chunks[0].OverlapLen)
}
