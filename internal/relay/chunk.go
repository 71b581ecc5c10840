package relay

import "encoding/json"

// Chunk is one decoded upstream line. Lines that decode to something other
// than a JSON object yield an empty Chunk.
type Chunk struct {
	fields map[string]any
}

// ParseChunk decodes a single upstream line.
func ParseChunk(line []byte) (Chunk, error) {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return Chunk{}, err
	}
	obj, _ := v.(map[string]any)
	return Chunk{fields: obj}, nil
}

// Done reports whether the chunk carries "done": true.
func (c Chunk) Done() bool {
	d, _ := c.fields["done"].(bool)
	return d
}

// Count returns a non-negative numeric field such as "eval_count", or 0.
func (c Chunk) Count(key string) uint64 {
	if f, ok := c.fields[key].(float64); ok && f > 0 {
		return uint64(f)
	}
	return 0
}

// Extractor picks the text fragment out of a chunk, if it has one.
type Extractor func(Chunk) (string, bool)

// ChatContent extracts message.content, the fragment of the chat contract.
func ChatContent(c Chunk) (string, bool) {
	msg, ok := c.fields["message"].(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := msg["content"].(string)
	return s, ok
}

// GenerateResponse extracts the top-level response string of the generate contract.
func GenerateResponse(c Chunk) (string, bool) {
	s, ok := c.fields["response"].(string)
	return s, ok
}
