package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/scoutworks/deepscout/internal/llm"
)

// ErrBadStreamEnd reports that a model stream ended without ever producing a
// value satisfying the early-acceptance predicate.
var ErrBadStreamEnd = errors.New("stream ended without an acceptable value")

// StreamEvent is one typed event produced while consuming a model stream.
// Exactly one field group is set: a reasoning delta, a cumulative object
// snapshot, a terminal error, or the bad-end marker.
type StreamEvent[T any] struct {
	Reasoning string
	Object    *T // cumulative best-effort parse; later events supersede earlier ones
	Err       error
	BadEnd    bool
}

// ConsumeStream incrementally parses a fragment stream into partially
// populated values of T. After every text delta the accumulated output is
// repaired into syntactically valid JSON and decoded; each successful decode
// is emitted as an Object event. accept is the early-acceptance predicate:
// if the stream ends without any emitted object satisfying it, a BadEnd
// event is emitted last. A terminal provider error is relayed as an Err
// event and ends consumption.
func ConsumeStream[T any](ctx context.Context, fragments <-chan llm.Fragment, accept func(*T) bool) <-chan StreamEvent[T] {
	out := make(chan StreamEvent[T], 16)

	go func() {
		defer close(out)

		var buf strings.Builder
		accepted := false

		emit := func(ev StreamEvent[T]) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for frag := range fragments {
			switch frag.Kind {
			case llm.FragmentReasoning:
				if !emit(StreamEvent[T]{Reasoning: frag.Text}) {
					return
				}
			case llm.FragmentError:
				emit(StreamEvent[T]{Err: frag.Err})
				return
			case llm.FragmentText:
				buf.WriteString(frag.Text)
				obj, ok := decodePartial[T](buf.String())
				if !ok {
					continue
				}
				if accept(obj) {
					accepted = true
				}
				if !emit(StreamEvent[T]{Object: obj}) {
					return
				}
			}
		}

		if !accepted {
			emit(StreamEvent[T]{BadEnd: true, Err: ErrBadStreamEnd})
		}
	}()

	return out
}

// decodePartial repairs a possibly truncated JSON prefix and decodes it into
// T. It reports false when no best-effort parse is possible yet (for
// example, a delta boundary inside a bare literal like "tru").
func decodePartial[T any](raw string) (*T, bool) {
	repaired, ok := completeJSON(raw)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	return &v, true
}

// completeJSON turns a prefix of a JSON document into a syntactically valid
// document: it starts at the first opening brace, closes an unterminated
// string, drops dangling keys and trailing commas, and closes every open
// bracket. Models often wrap JSON in prose or fences, so leading noise is
// skipped.
func completeJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}
	raw = raw[start:]

	var stack []byte
	inString := false
	escaped := false
	end := len(raw)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				// stray closer; cut here
				end = i
				i = len(raw)
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				// document complete; ignore any trailing output
				return raw[:i+1], true
			}
		}
	}

	repaired := raw[:end]
	if inString {
		if escaped {
			repaired = repaired[:len(repaired)-1]
		}
		repaired += `"`
	}

	// Walk back over anything that cannot stand as a complete value so the
	// closers below produce valid JSON.
	for {
		trimmed := strings.TrimRight(repaired, " \t\r\n")
		if trimmed == "" {
			return "", false
		}
		last := trimmed[len(trimmed)-1]
		if last == ',' {
			repaired = trimmed[:len(trimmed)-1]
			continue
		}
		if last == ':' {
			repaired = trimmed + "null"
			break
		}
		if isPartialLiteral(trimmed) {
			return "", false
		}
		repaired = trimmed
		break
	}

	// A closed string directly inside an object is a dangling key unless a
	// colon follows it; "…\"key\"" at object level needs a value.
	if len(stack) > 0 && stack[len(stack)-1] == '{' && strings.HasSuffix(repaired, `"`) {
		if !endsWithPair(repaired) {
			repaired += ":null"
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			repaired += "}"
		} else {
			repaired += "]"
		}
	}
	return repaired, true
}

// isPartialLiteral reports whether the tail of s is an incomplete true/false/
// null literal that would not survive json.Unmarshal.
func isPartialLiteral(s string) bool {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			i--
			continue
		}
		break
	}
	tail := s[i:]
	if tail == "" || tail == "true" || tail == "false" || tail == "null" {
		return false
	}
	for _, lit := range []string{"true", "false", "null"} {
		if strings.HasPrefix(lit, tail) {
			return true
		}
	}
	// some other bare word; unparseable either way
	return true
}

// endsWithPair reports whether the closed string terminating s is the value
// of a key:value pair rather than a dangling key.
func endsWithPair(s string) bool {
	// find the opening quote of the terminating string
	i := len(s) - 2
	for i >= 0 {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			break
		}
		i--
	}
	if i < 0 {
		return false
	}
	before := strings.TrimRight(s[:i], " \t\r\n")
	return strings.HasSuffix(before, ":")
}
