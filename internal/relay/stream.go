package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/gaspardpetit/chatrelay/internal/logx"
)

// MaxLineSize bounds a single upstream NDJSON line.
const MaxLineSize = 1 << 20

// ErrMalformedLine is reported when an upstream line is not valid JSON.
var ErrMalformedLine = errors.New("malformed upstream line")

// Options tune how a Stream treats its input.
type Options struct {
	// SkipMalformedLines drops lines that fail to parse instead of ending
	// the stream with ErrMalformedLine.
	SkipMalformedLines bool
}

// Stream is a lazy, single-use sequence of text fragments read from one
// open upstream response body. It is not safe for concurrent use.
//
//	s := relay.NewStream(body, relay.ChatContent, relay.Options{})
//	defer s.Close()
//	for s.Next() {
//		use(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
//
// The body is closed as soon as the sequence ends, and by Close when the
// caller abandons it early.
type Stream struct {
	ID string

	body    io.ReadCloser
	sc      *bufio.Scanner
	extract Extractor
	opts    Options

	frag    string
	err     error
	ended   bool
	lines   int
	skipped int
	final   Chunk

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps body. extract selects the fragment of each chunk.
func NewStream(body io.ReadCloser, extract Extractor, opts Options) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Stream{
		ID:      uuid.NewString(),
		body:    body,
		sc:      sc,
		extract: extract,
		opts:    opts,
	}
}

// Next advances to the next fragment. It reads only as many lines as needed
// to produce one fragment and returns false once the sequence has ended.
func (s *Stream) Next() bool {
	if s.ended {
		return false
	}
	for s.sc.Scan() {
		line := bytes.TrimSpace(s.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		s.lines++
		c, err := ParseChunk(line)
		if err != nil {
			if s.opts.SkipMalformedLines {
				s.skipped++
				logx.Log.Debug().Str("stream_id", s.ID).Int("line", s.lines).Err(err).Msg("skipping malformed upstream line")
				continue
			}
			s.end(fmt.Errorf("%w: line %d: %v", ErrMalformedLine, s.lines, err))
			return false
		}
		if c.Done() {
			s.final = c
		}
		if frag, ok := s.extract(c); ok {
			s.frag = frag
			return true
		}
	}
	if err := s.sc.Err(); err != nil {
		s.end(fmt.Errorf("read upstream: %w", err))
		return false
	}
	s.end(nil)
	return false
}

// Fragment returns the fragment produced by the last successful Next.
func (s *Stream) Fragment() string { return s.frag }

// Err returns the error that ended the sequence, or nil on a clean end.
func (s *Stream) Err() error { return s.err }

// Lines returns the number of non-blank lines read so far.
func (s *Stream) Lines() int { return s.lines }

// Skipped returns the number of malformed lines dropped.
func (s *Stream) Skipped() int { return s.skipped }

// Usage returns the prompt and completion token counts reported by the final
// upstream chunk, when there was one.
func (s *Stream) Usage() (prompt, completion uint64) {
	return s.final.Count("prompt_eval_count"), s.final.Count("eval_count")
}

// Close releases the upstream body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	s.ended = true
	return s.closeErr
}

func (s *Stream) end(err error) {
	s.err = err
	s.frag = ""
	_ = s.Close()
}
