// Package translate converts natural-language questions into backend-specific
// query text through an external completion service.
package translate

import (
	"context"
	"io"

	"github.com/nlbridge/nlbridge/internal/backend"
)

// Result is the extracted query for the target backend. It is consumed
// immediately by the executor and never persisted.
type Result struct {
	Query string
	Kind  backend.Kind
}

// Options are forwarded to the completion service.
type Options struct {
	Temperature   float64
	MaxTokens     int
	StopSequences []string
}

// Stream is a lazy, finite, non-restartable sequence of completion text
// chunks. Next returns io.EOF after the final chunk. Partial chunks cannot be
// validated on their own, so the engine buffers the whole stream before
// extraction.
type Stream interface {
	Next() (string, error)
}

// Completer is the external completion service port: prompt in, chunk
// stream out.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (Stream, error)
}

type chunkStream struct {
	chunks []string
	pos    int
}

// NewChunkStream wraps already-materialized chunks in the Stream contract.
// Non-streaming completers and test stubs use it.
func NewChunkStream(chunks ...string) Stream {
	return &chunkStream{chunks: chunks}
}

func (s *chunkStream) Next() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}
