package sequence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cbegin/stepsynth-go/internal/note"
)

// Sequence is an ordered list of notes, one entry per step. A note lasting
// several steps is followed by rests that fill the slots it covers.
type Sequence []note.Note

// Steps is the number of discrete steps the sequence occupies.
func (s Sequence) Steps() int { return len(s) }

// SoundingCount returns how many entries produce a voice.
func (s Sequence) SoundingCount() int {
	n := 0
	for _, nt := range s {
		if nt.IsSounding() {
			n++
		}
	}
	return n
}

// Labels renders one display label per step: the note text at its first step,
// the tie marker for the steps it holds, and "." for rests.
func (s Sequence) Labels() []string {
	labels := make([]string, len(s))
	hold := 0
	for i, nt := range s {
		switch {
		case hold > 0 && nt.Kind == note.KindRest:
			labels[i] = "-"
			hold--
			continue
		case nt.Kind == note.KindRest:
			labels[i] = "."
		default:
			labels[i] = nt.String()
		}
		hold = nt.Steps - 1
	}
	return labels
}

func (s Sequence) String() string {
	return strings.Join(s.Labels(), " ")
}

// Longest returns the step count of the longest sequence.
func Longest(seqs ...Sequence) int {
	max := 0
	for _, s := range seqs {
		if len(s) > max {
			max = len(s)
		}
	}
	return max
}

type ParserConfig struct {
	Tie string
	// Strict rejects tokens that do not resolve to a pitch instead of
	// keeping them as silent unpitched notes.
	Strict bool
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{Tie: "-"}
}

type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser {
	if cfg.Tie == "" {
		cfg.Tie = "-"
	}
	return &Parser{cfg: cfg}
}

// ParseError locates a rejected token in strict mode.
type ParseError struct {
	Index int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("token %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse turns space-separated note text into a sequence. Tokens are split on
// runs of whitespace. A tie token extends the note immediately before it; a
// tie with nothing to extend becomes a one-step rest.
//
// In strict mode every malformed token is reported, joined into one error, and
// no sequence is returned.
func (p *Parser) Parse(raw string) (Sequence, error) {
	tokens := strings.Fields(raw)
	seq := make(Sequence, 0, len(tokens))
	var errs []error

	var pending note.Note
	hasPending := false
	duration := 0
	flush := func() {
		if !hasPending {
			return
		}
		seq = append(seq, pending.WithSteps(duration))
		for i := 1; i < duration; i++ {
			seq = append(seq, note.Rest(1))
		}
		hasPending = false
	}

	for i, tok := range tokens {
		if tok == p.cfg.Tie {
			if hasPending {
				duration++
				continue
			}
			seq = append(seq, note.Rest(1))
			continue
		}
		flush()
		n := note.FromToken(tok, 1)
		if p.cfg.Strict && n.Kind == note.KindUnpitched {
			_, err := note.Parse(tok)
			if err == nil {
				err = fmt.Errorf("note %q does not sound", tok)
			}
			errs = append(errs, &ParseError{Index: i, Token: tok, Err: err})
		}
		pending = n
		hasPending = true
		duration = 1
	}
	flush()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return seq, nil
}

// Parse is the lenient parse with the default configuration.
func Parse(raw string) Sequence {
	seq, _ := NewParser(DefaultParserConfig()).Parse(raw)
	return seq
}
