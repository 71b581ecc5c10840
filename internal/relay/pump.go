package relay

import (
	"context"
	"net/http"
)

// ErrorFragment renders err as the diagnostic fragment that terminates a
// failed stream.
func ErrorFragment(err error) string {
	return "Error: " + err.Error()
}

// Emit delivers one fragment to the caller.
type Emit func(fragment string) error

// Pump drains s into emit and returns the number of fragments delivered.
// A stream failure is delivered as a final ErrorFragment and returned. When
// emit fails, or ctx ends because the caller went away, pumping stops and
// that error is returned without a diagnostic fragment. s is closed on return.
func Pump(ctx context.Context, s *Stream, emit Emit) (int, error) {
	defer func() {
		_ = s.Close()
	}()
	n := 0
	for s.Next() {
		if err := emit(s.Fragment()); err != nil {
			return n, err
		}
		n++
	}
	err := s.Err()
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	if emitErr := emit(ErrorFragment(err)); emitErr != nil {
		return n, emitErr
	}
	return n, err
}

// HTTPEmitter writes each fragment to w and flushes it immediately.
func HTTPEmitter(w http.ResponseWriter) Emit {
	flusher, _ := w.(http.Flusher)
	return func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
}
