package translate

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

// Engine drives the completion service and turns its output into a validated
// query string. The service is untrusted: output is buffered, unwrapped from
// conversational framing and checked for plausibility before anything reaches
// a backend.
type Engine struct {
	Completer Completer
	Options   Options
}

func NewEngine(completer Completer, opts Options) *Engine {
	return &Engine{Completer: completer, Options: opts}
}

func (e *Engine) Translate(ctx context.Context, prompt string, kind backend.Kind) (Result, error) {
	const op = "translate"

	if e.Completer == nil {
		return Result{}, fault.Newf(fault.KindCompletionUnavailable, op, "no completion service configured")
	}

	stream, err := e.Completer.Complete(ctx, prompt, e.Options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{}, fault.New(fault.KindCompletionUnavailable, op, err)
	}

	var buf strings.Builder
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			return Result{}, fault.New(fault.KindCompletionUnavailable, op, err)
		}
		buf.WriteString(chunk)
	}

	raw := strings.TrimSpace(buf.String())
	if raw == "" {
		return Result{}, fault.Newf(fault.KindTranslationMalformed, op, "completion service returned no text")
	}

	query := ExtractQuery(raw)
	if err := ValidateQuery(query, kind); err != nil {
		if isRefusal(raw) {
			return Result{}, fault.New(fault.KindTranslationRefused, op, err)
		}
		return Result{}, err
	}

	return Result{Query: query, Kind: kind}, nil
}

// ExtractQuery strips the conversational wrapping models add around query
// text: markdown fences, a leading label line, trailing prose after the
// statement terminator.
func ExtractQuery(raw string) string {
	text := strings.TrimSpace(raw)

	if idx := strings.Index(text, "```"); idx >= 0 {
		fenced := text[idx+3:]
		if end := strings.Index(fenced, "```"); end >= 0 {
			fenced = fenced[:end]
		}
		// Drop the language tag on the opening fence.
		if nl := strings.IndexByte(fenced, '\n'); nl >= 0 {
			first := strings.TrimSpace(fenced[:nl])
			if len(first) <= 10 && !strings.ContainsAny(first, " (") {
				fenced = fenced[nl+1:]
			}
		}
		text = strings.TrimSpace(fenced)
	}

	for _, label := range []string{"sql:", "query:", "cql:", "answer:"} {
		if len(text) >= len(label) && strings.EqualFold(text[:len(label)], label) {
			text = strings.TrimSpace(text[len(label):])
			break
		}
	}

	return cutAtTerminator(text)
}

// cutAtTerminator drops everything from the first statement terminator on,
// ignoring semicolons inside quoted literals. Models like to append an
// explanation sentence after the query.
func cutAtTerminator(text string) string {
	var inSingle, inDouble bool
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; {
		case inSingle:
			if c == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == ';':
			return strings.TrimSpace(string(runes[:i]))
		}
	}
	return strings.TrimSpace(text)
}

// ValidateQuery checks that text plausibly starts a statement for the target
// backend and carries balanced quoting and parentheses. It is a cheap shape
// check, not a parse.
func ValidateQuery(text string, kind backend.Kind) error {
	const op = "translate.validate"

	if strings.TrimSpace(text) == "" {
		return fault.Newf(fault.KindTranslationMalformed, op, "no query text extracted")
	}

	first := strings.ToLower(firstWord(text))
	if !allowedStatementPrefix(first, kind) {
		return fault.Newf(fault.KindTranslationMalformed, op, "%q does not start a %s statement", first, kind)
	}

	if err := checkBalance(text); err != nil {
		return fault.New(fault.KindTranslationMalformed, op, err)
	}
	return nil
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func allowedStatementPrefix(first string, kind backend.Kind) bool {
	switch kind {
	case backend.KindCassandra:
		switch first {
		case "select", "insert", "update", "delete":
			return true
		}
		return false
	default:
		switch first {
		case "select", "with", "show", "describe", "explain", "values", "pragma", "insert", "update", "delete":
			return true
		}
		return false
	}
}

var errUnbalanced = errors.New("unbalanced quoting or parentheses")

func checkBalance(text string) error {
	var inSingle, inDouble bool
	depth := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inSingle:
			if c == '\'' {
				// Doubled quote is an escaped literal quote.
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return errUnbalanced
			}
		}
	}
	if inSingle || inDouble || depth != 0 {
		return errUnbalanced
	}
	return nil
}

var refusalMarkers = []string{
	"i can't",
	"i cannot",
	"i won't",
	"i'm sorry",
	"i am sorry",
	"i'm unable",
	"i am unable",
	"as an ai",
	"cannot assist",
	"can't help with",
}

func isRefusal(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, marker := range refusalMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
