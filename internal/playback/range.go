package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedRange      = errors.New("malformed range header")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive span of a file.
type ByteRange struct {
	First int64
	Last  int64
}

func (b ByteRange) Len() int64 {
	return b.Last - b.First + 1
}

// ContentRange formats the Content-Range header value for a file of size bytes.
func (b ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.First, b.Last, size)
}

// ParseRange reads the first range of a Range header against a file of size
// bytes. An empty header returns ok=false with no error. Only the first range
// of a multi-range request is honored.
func ParseRange(header string, size int64) (br ByteRange, ok bool, err error) {
	if header == "" {
		return ByteRange{}, false, nil
	}
	ranges, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return ByteRange{}, false, ErrMalformedRange
	}
	ranges, _, _ = strings.Cut(ranges, ",")
	first, last, found := strings.Cut(strings.TrimSpace(ranges), "-")
	if !found {
		return ByteRange{}, false, ErrMalformedRange
	}

	switch {
	case first == "":
		// Suffix form: the last n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, false, ErrMalformedRange
		}
		br = ByteRange{First: max(size-n, 0), Last: size - 1}
	default:
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return ByteRange{}, false, ErrMalformedRange
		}
		br = ByteRange{First: start, Last: size - 1}
		if last != "" {
			end, err := strconv.ParseInt(last, 10, 64)
			if err != nil {
				return ByteRange{}, false, ErrMalformedRange
			}
			br.Last = min(end, size-1)
			if end < start {
				return ByteRange{}, false, ErrRangeNotSatisfiable
			}
		}
	}

	if br.First >= size || br.First > br.Last {
		return ByteRange{}, false, ErrRangeNotSatisfiable
	}
	return br, true, nil
}
