// Package displaycode turns order ids into the short uppercase codes printed
// on receipts and shown on the customer display.
package displaycode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sqids/sqids-go"
)

var (
	ErrInvalidCode = errors.New("invalid display code")
	ErrCodeSpace   = errors.New("display code space exhausted")
)

// Codec produces codes of exactly width characters. sqids only pads up to
// the minimum length, so ids whose encoding would be longer are refused.
type Codec struct {
	s     *sqids.Sqids
	width int
}

func New(alphabet string, minLength uint8) (*Codec, error) {
	if minLength == 0 {
		return nil, errors.New("display code length must be positive")
	}
	if alphabet != strings.ToUpper(alphabet) {
		return nil, fmt.Errorf("display code alphabet must be uppercase: %q", alphabet)
	}
	s, err := sqids.New(sqids.Options{Alphabet: alphabet, MinLength: minLength})
	if err != nil {
		return nil, fmt.Errorf("display code codec: %w", err)
	}
	return &Codec{s: s, width: int(minLength)}, nil
}

func (c *Codec) Encode(id int64) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("encode id %d: must be positive", id)
	}
	code, err := c.s.Encode([]uint64{uint64(id)})
	if err != nil {
		return "", fmt.Errorf("encode id %d: %w", id, err)
	}
	if len(code) != c.width {
		return "", fmt.Errorf("encode id %d: %w at %d characters", id, ErrCodeSpace, c.width)
	}
	return code, nil
}

func (c *Codec) Width() int { return c.width }

// Decode accepts codes in any letter case and only the canonical encoding of
// a single id.
func (c *Codec) Decode(code string) (int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != c.width {
		return 0, ErrInvalidCode
	}
	nums := c.s.Decode(code)
	if len(nums) != 1 || nums[0] == 0 || nums[0] > 1<<62 {
		return 0, ErrInvalidCode
	}
	again, err := c.s.Encode(nums)
	if err != nil || again != code {
		return 0, ErrInvalidCode
	}
	return int64(nums[0]), nil
}
