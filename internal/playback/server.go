// Package playback streams rendered highlight reels over HTTP with byte-range
// support, so players can seek without downloading the whole file.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/h2non/filetype"
)

// sniffLen covers the container signatures filetype looks at.
const sniffLen = 261

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger}
}

// Serve writes the file at path, honoring a Range header. A missing file is
// returned as an error wrapping os.ErrNotExist before anything is written.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reel: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat reel: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("open reel: %w", os.ErrNotExist)
	}
	size := info.Size()

	contentType, err := sniffContentType(f)
	if err != nil {
		return err
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	br, partial, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrRangeNotSatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// A malformed header is ignored and the whole file is sent.
		s.logger.Debug("ignoring malformed range header", "range", r.Header.Get("Range"))
		partial = false
	}

	if !partial {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return nil
	}

	if _, err := f.Seek(br.First, io.SeekStart); err != nil {
		return fmt.Errorf("seek reel: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(br.Len(), 10))
	w.Header().Set("Content-Range", br.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		io.CopyN(w, f, br.Len())
	}
	return nil
}

// sniffContentType reads the container signature and rewinds f.
func sniffContentType(f *os.File) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read reel header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek reel: %w", err)
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return "application/octet-stream", nil
	}
	return kind.MIME.Value, nil
}
