package chunker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/secsift/secsift/src/models"
)

type Strategy string

const (
	StrategyText Strategy = "text"
	StrategyJSON Strategy = "json"
)

// jsonOverlapObjects is how many trailing objects a JSON chunk carries into
// the next one for referential continuity.
const jsonOverlapObjects = 2

// minEffectiveBudget keeps the chunker making progress when a metadata
// header eats nearly the whole per-chunk budget.
const minEffectiveBudget = 100

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Result is the outcome of one chunking pass.
type Result struct {
	Chunks   []models.Chunk
	Strategy Strategy
	// Degraded is set when input looked like JSON but did not parse, and
	// the chunker fell back to the text strategy.
	Degraded bool
	Warnings []string
}

// Chunker splits oversized input into ordered budget-sized chunks. The
// strategy is picked by sniffing the input shape: JSON arrays/objects get
// object-preserving chunks, everything else is split on line and sentence
// boundaries.
type Chunker struct {
	counter models.TokenEstimator
}

func NewChunker(counter models.TokenEstimator) *Chunker {
	return &Chunker{counter: counter}
}

// Chunk splits input so that every chunk fits maxTokens, carrying
// overlapTokens worth of trailing context across each boundary. Chunks come
// out in input order and every input byte lands in at least one chunk; only
// a single unit (line or object) that alone exceeds the budget produces an
// over-budget chunk, and that chunk is flagged.
func (c *Chunker) Chunk(input string, maxTokens, overlapTokens int) *Result {
	if maxTokens <= 0 {
		maxTokens = minEffectiveBudget
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}

	if input == "" {
		return &Result{
			Chunks:   []models.Chunk{{Index: 0, Text: "", TokenCount: 0}},
			Strategy: StrategyText,
		}
	}

	header, body, looksJSON := sniff(input)
	if looksJSON {
		objects, err := parseObjects(body)
		if err == nil {
			return c.chunkJSON(header, objects, maxTokens, overlapTokens)
		}
		res := c.chunkText(input, maxTokens, overlapTokens)
		res.Degraded = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("input looked like JSON but did not parse (%v), fell back to text chunking", err))
		return res
	}

	return c.chunkText(input, maxTokens, overlapTokens)
}

// sniff decides whether input is JSON, optionally preceded by a metadata
// header block. The header is everything before the first line that starts
// with '[' or '{'.
func sniff(input string) (header, body string, looksJSON bool) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return "", input, true
	}

	offset := 0
	for {
		nl := strings.IndexByte(input[offset:], '\n')
		if nl < 0 {
			return "", input, false
		}
		offset += nl + 1
		rest := strings.TrimSpace(input[offset:])
		if strings.HasPrefix(rest, "[") || strings.HasPrefix(rest, "{") {
			return strings.TrimRight(input[:offset], "\n"), input[offset:], true
		}
	}
}

// parseObjects decodes body into its element objects. A top-level object is
// treated as a one-element sequence; objects are never split below this
// granularity.
func parseObjects(body string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "[") {
		var objects []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &objects); err != nil {
			return nil, err
		}
		return objects, nil
	}
	var obj json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, err
	}
	if !json.Valid(obj) {
		return nil, fmt.Errorf("invalid JSON object")
	}
	return []json.RawMessage{obj}, nil
}

// chunkText accumulates newline-terminated units under the budget. A single
// unit over the budget is split on sentence boundaries; a sentence run that
// still exceeds the budget is emitted alone and flagged rather than cut
// mid-content.
func (c *Chunker) chunkText(input string, maxTokens, overlapTokens int) *Result {
	units := splitUnits(input)

	res := &Result{Strategy: StrategyText}
	var current []string
	currentTokens := 0
	overlap := ""

	flush := func(overBudget bool) {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "")
		text := overlap + body
		res.Chunks = append(res.Chunks, models.Chunk{
			Index:      len(res.Chunks),
			Text:       text,
			TokenCount: c.counter.Count(text),
			OverBudget: overBudget,
			OverlapLen: len(overlap),
		})
		overlap = carryTail(current, overlapTokens)
		current = nil
		currentTokens = 0
	}

	for _, unit := range units {
		unitTokens := c.counter.Count(unit)

		if unitTokens > maxTokens {
			flush(false)
			pieces := splitSentences(unit)
			for _, piece := range pieces {
				pieceTokens := c.counter.Count(piece)
				if pieceTokens > maxTokens {
					flush(false)
					current = []string{piece}
					currentTokens = pieceTokens
					flush(true)
					continue
				}
				if currentTokens+pieceTokens > maxTokens {
					flush(false)
				}
				current = append(current, piece)
				currentTokens += pieceTokens
			}
			flush(false)
			continue
		}

		if currentTokens+unitTokens > maxTokens {
			flush(false)
		}
		current = append(current, unit)
		currentTokens += unitTokens
	}
	flush(false)

	return res
}

// splitUnits cuts input into lines that keep their terminating newline, so
// plain concatenation of units reconstructs the input exactly.
func splitUnits(input string) []string {
	var units []string
	for len(input) > 0 {
		nl := strings.IndexByte(input, '\n')
		if nl < 0 {
			units = append(units, input)
			break
		}
		units = append(units, input[:nl+1])
		input = input[nl+1:]
	}
	return units
}

// splitSentences cuts a unit on sentence boundaries, preserving all bytes.
// Without any sentence punctuation the unit comes back whole.
func splitSentences(unit string) []string {
	locs := sentencePattern.FindAllStringIndex(unit, -1)
	if len(locs) == 0 {
		return []string{unit}
	}
	var pieces []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			pieces = append(pieces, unit[prev:loc[0]])
		}
		pieces = append(pieces, unit[loc[0]:loc[1]])
		prev = loc[1]
	}
	if prev < len(unit) {
		pieces = append(pieces, unit[prev:])
	}
	return pieces
}

// carryTail returns the trailing units of the finished chunk, bounded to
// roughly overlapTokens worth of characters.
func carryTail(units []string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	budget := overlapTokens * 4 // ~4 chars per token
	tail := ""
	for i := len(units) - 1; i >= 0; i-- {
		if len(tail)+len(units[i]) > budget && tail != "" {
			break
		}
		tail = units[i] + tail
		if len(tail) >= budget {
			break
		}
	}
	return tail
}

// chunkJSON accumulates whole objects under the budget, never splitting one
// across chunks. The metadata header is repeated verbatim at the top of
// every chunk with its token cost pre-deducted from the budget.
func (c *Chunker) chunkJSON(header string, objects []json.RawMessage, maxTokens, overlapTokens int) *Result {
	res := &Result{Strategy: StrategyJSON}

	prefix := ""
	if header != "" {
		prefix = header + "\n"
	}
	budget := maxTokens - c.counter.Count(prefix)
	if budget < minEffectiveBudget {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("metadata header consumes most of the %d-token budget, chunking at the %d-token floor", maxTokens, minEffectiveBudget))
		budget = minEffectiveBudget
	}

	type member struct {
		raw    json.RawMessage
		tokens int
		index  int
	}

	var current []member
	currentTokens := 0
	var overlap []member
	rangeStart := 0

	emit := func(overBudget bool) {
		if len(current) == 0 {
			return
		}
		parts := make([]string, 0, len(overlap)+len(current))
		for _, m := range overlap {
			parts = append(parts, string(m.raw))
		}
		for _, m := range current {
			parts = append(parts, string(m.raw))
		}
		text := prefix + "[" + strings.Join(parts, ",") + "]"
		end := current[len(current)-1].index + 1
		res.Chunks = append(res.Chunks, models.Chunk{
			Index:       len(res.Chunks),
			Text:        text,
			TokenCount:  c.counter.Count(text),
			ObjectRange: &models.ObjectRange{Start: rangeStart, End: end},
			OverBudget:  overBudget,
		})
		if overBudget {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("object %d alone exceeds the %d-token chunk budget", current[0].index, maxTokens))
		}

		// Carry the last objects forward for referential continuity.
		carry := len(current)
		if carry > jsonOverlapObjects {
			carry = jsonOverlapObjects
		}
		overlap = append([]member(nil), current[len(current)-carry:]...)
		rangeStart = end
		current = nil
		currentTokens = 0
	}

	for i, obj := range objects {
		t := c.counter.Count(string(obj))

		if t > budget {
			emit(false)
			current = []member{{raw: obj, tokens: t, index: i}}
			currentTokens = t
			emit(true)
			continue
		}

		overlapTok := 0
		for _, m := range overlap {
			overlapTok += m.tokens
		}
		if currentTokens+overlapTok+t > budget && len(current) > 0 {
			emit(false)
			overlapTok = 0
			for _, m := range overlap {
				overlapTok += m.tokens
			}
		}
		if len(current) == 0 && overlapTok+t > budget {
			// Overlap carry must never push a fresh chunk over budget.
			overlap = nil
		}
		current = append(current, member{raw: obj, tokens: t, index: i})
		currentTokens += t
	}
	emit(false)

	if len(res.Chunks) == 0 {
		// Empty array input still yields one chunk so downstream sees the header.
		text := prefix + "[]"
		res.Chunks = append(res.Chunks, models.Chunk{
			Index:       0,
			Text:        text,
			TokenCount:  c.counter.Count(text),
			ObjectRange: &models.ObjectRange{},
		})
	}

	return res
}
