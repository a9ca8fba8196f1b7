package playback

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    ByteRange
		wantOK  bool
		wantErr error
	}{
		{"no header", "", 1000, ByteRange{}, false, nil},
		{"whole file", "bytes=0-999", 1000, ByteRange{0, 999}, true, nil},
		{"open ended", "bytes=500-", 1000, ByteRange{500, 999}, true, nil},
		{"suffix", "bytes=-500", 1000, ByteRange{500, 999}, true, nil},
		{"suffix longer than file", "bytes=-2000", 500, ByteRange{0, 499}, true, nil},
		{"end clamped", "bytes=0-2000", 1000, ByteRange{0, 999}, true, nil},
		{"first of many", "bytes=0-99, 200-299", 1000, ByteRange{0, 99}, true, nil},
		{"single byte", "bytes=999-999", 1000, ByteRange{999, 999}, true, nil},

		{"start past end of file", "bytes=1000-", 1000, ByteRange{}, false, ErrRangeNotSatisfiable},
		{"reversed", "bytes=200-100", 1000, ByteRange{}, false, ErrRangeNotSatisfiable},
		{"empty file", "bytes=0-", 0, ByteRange{}, false, ErrRangeNotSatisfiable},
		{"other unit", "items=0-10", 1000, ByteRange{}, false, ErrMalformedRange},
		{"no dash", "bytes=100", 1000, ByteRange{}, false, ErrMalformedRange},
		{"bad start", "bytes=x-10", 1000, ByteRange{}, false, ErrMalformedRange},
		{"bad end", "bytes=0-x", 1000, ByteRange{}, false, ErrMalformedRange},
		{"zero suffix", "bytes=-0", 1000, ByteRange{}, false, ErrMalformedRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseRange(tt.header, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRange() error = %v, want %v", err, tt.wantErr)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRange() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestByteRange_Headers(t *testing.T) {
	br := ByteRange{First: 500, Last: 999}
	if br.Len() != 500 {
		t.Errorf("Len() = %d, want 500", br.Len())
	}
	if got := br.ContentRange(1000); got != "bytes 500-999/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
}
