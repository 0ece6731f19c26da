package instruments

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrParse is returned when a line does not contain the expected numeric token
var ErrParse = errors.New("unparseable reading")

var numberRE = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)

// Decoder extracts one numeric token from each line of instrument output
// and remembers the last value that decoded successfully
type Decoder struct {
	tokenIndex int
	scale      float64
	lastGood   float64
}

// NewDecoder creates a Decoder picking the tokenIndex'th number of a line
// and multiplying it by scale. A zero scale is treated as 1.
func NewDecoder(tokenIndex int, scale float64) *Decoder {
	if scale == 0 {
		scale = 1
	}
	return &Decoder{tokenIndex: tokenIndex, scale: scale}
}

// Decode returns the reading in line. On failure it returns the last good
// reading (initially 0) together with an error wrapping ErrParse.
func (d *Decoder) Decode(line string) (float64, error) {
	tokens := numberRE.FindAllString(line, -1)
	if d.tokenIndex >= len(tokens) {
		return d.lastGood, fmt.Errorf("%w: want token %d, found %d", ErrParse, d.tokenIndex, len(tokens))
	}
	v, err := strconv.ParseFloat(tokens[d.tokenIndex], 64)
	if err != nil {
		return d.lastGood, fmt.Errorf("%w: %v", ErrParse, err)
	}
	d.lastGood = v * d.scale
	return d.lastGood, nil
}

// LastGood returns the most recent successfully decoded reading
func (d *Decoder) LastGood() float64 {
	return d.lastGood
}

// readLine reads up to the next CR or LF, skipping empty lines. Instruments
// terminate readings with CR, LF or both.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(buf), err
		}
		if b == '\r' || b == '\n' {
			if len(buf) == 0 {
				continue
			}
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}
