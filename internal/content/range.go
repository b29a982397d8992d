package content

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedRange means the Range header cannot be honoured. Callers fall
// back to a full-body response.
var ErrMalformedRange = errors.New("malformed range")

// Only one range per request; a comma never matches.
var rangeRegex = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// Range is an inclusive byte interval with 0 <= Start <= End < total size.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value.
func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single "bytes=start-end" spec against a file of total
// bytes. A missing start with an end is a suffix range (the last end bytes).
// A missing end, or one past the file, means the last byte.
func ParseRange(spec string, total int64) (Range, error) {
	m := rangeRegex.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformedRange, spec)
	}
	if total <= 0 {
		return Range{}, fmt.Errorf("%w: empty file", ErrMalformedRange)
	}
	startStr, endStr := m[1], m[2]
	last := total - 1

	if startStr == "" {
		if endStr == "" {
			return Range{}, fmt.Errorf("%w: %q", ErrMalformedRange, spec)
		}
		n, err := parseBound(endStr, total)
		if err != nil {
			return Range{}, err
		}
		if n == 0 {
			return Range{}, fmt.Errorf("%w: zero-length suffix", ErrMalformedRange)
		}
		if n > total {
			n = total
		}
		return Range{Start: total - n, End: last}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start > last {
		return Range{}, fmt.Errorf("%w: start %s beyond %d bytes", ErrMalformedRange, startStr, total)
	}

	end := last
	if endStr != "" {
		end, err = parseBound(endStr, total)
		if err != nil {
			return Range{}, err
		}
		if end < start {
			return Range{}, fmt.Errorf("%w: end before start", ErrMalformedRange)
		}
		if end > last {
			end = last
		}
	}
	return Range{Start: start, End: end}, nil
}

// parseBound parses a decimal bound; values too large for int64 clamp to total.
func parseBound(s string, total int64) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return total, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedRange, s)
	}
	return v, nil
}
