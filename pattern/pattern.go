package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern is a byte sequence with wildcard positions, written in the usual
// signature notation: hex byte pairs separated by spaces, "??" (or "?") for
// a position that matches any byte.
type Pattern struct {
	code []byte
	mask []bool
	repr string
}

func Parse(s string) (*Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, ErrEmptyPattern
	}
	p := &Pattern{
		code: make([]byte, len(fields)),
		mask: make([]bool, len(fields)),
		repr: strings.Join(fields, " "),
	}
	for i, tok := range fields {
		if tok == "?" || tok == "??" {
			continue
		}
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: bad byte %q at position %d", s, tok, i)
		}
		p.code[i] = byte(b)
		p.mask[i] = true
	}
	return p, nil
}

// MustParse is Parse for patterns known at compile time.
func MustParse(s string) *Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) Len() int {
	return len(p.code)
}

func (p *Pattern) String() string {
	return p.repr
}

// MatchAt reports whether the pattern matches data starting at position i.
func (p *Pattern) MatchAt(data []byte, i int) bool {
	if i < 0 || i+len(p.code) > len(data) {
		return false
	}
	for j, b := range p.code {
		if p.mask[j] && data[i+j] != b {
			return false
		}
	}
	return true
}

// Find returns the offset of the first match within data.
func (p *Pattern) Find(data []byte) (int, bool) {
	for i := 0; i+len(p.code) <= len(data); i++ {
		if p.MatchAt(data, i) {
			return i, true
		}
	}
	return 0, false
}
