package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-insight/internal/catalog"
)

func TestEDLDownload(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.seedCompleted(t)

	rr := env.do(t, http.MethodGet, "/videos/"+v.ID+"/highlights/edl", "")
	expectStatus(t, rr, http.StatusOK)

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="talk_highlights.edl"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	edl := rr.Body.String()
	for _, want := range []string{
		"TITLE: talk.mp4 highlights",
		// Clips are laid out in timeline order, back to back on the record side.
		"00:00:05:00 00:00:25:00 00:00:00:00 00:00:20:00",
		"00:00:30:00 00:00:50:00 00:00:20:00 00:00:40:00",
		"* COMMENT:  key_point: Revenue",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestEDLDownload_CustomTitle(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.seedCompleted(t)

	rr := env.do(t, http.MethodGet, "/videos/"+v.ID+"/highlights/edl?title=Q3%20review", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Body.String(), "TITLE: Q3 review\n") {
		t.Errorf("EDL = %q", rr.Body.String())
	}
}

func TestEDLDownload_NoHighlights(t *testing.T) {
	env := newTestEnv(t)
	v := env.createVideo(t, catalog.StatusUploaded)

	expectStatus(t, env.do(t, http.MethodGet, "/videos/"+v.ID+"/highlights/edl", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/videos/missing/highlights/edl", ""), http.StatusNotFound)
}

func TestEDLExport(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.seedCompleted(t)
	dir := t.TempDir()

	rr := env.do(t, http.MethodPost, "/videos/"+v.ID+"/highlights/edl", fmt.Sprintf(`{"output_dir":%q}`, dir))
	expectStatus(t, rr, http.StatusOK)

	body := decodeJSONBody(t, rr)
	wantPath := filepath.Join(dir, "talk_highlights.edl")
	if body["output_path"] != wantPath || body["clip_count"] != float64(2) || body["frame_rate"] != float64(25) {
		t.Errorf("body = %v", body)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "TITLE: talk.mp4 highlights") {
		t.Errorf("exported EDL = %q", data)
	}
}

func TestEDLExport_InvalidOutputDir(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.seedCompleted(t)

	for _, dir := range []string{"", "relative/dir", "/tmp/../etc", filepath.Join(t.TempDir(), "missing")} {
		t.Run(dir, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/videos/"+v.ID+"/highlights/edl", fmt.Sprintf(`{"output_dir":%q}`, dir))
			expectStatus(t, rr, http.StatusBadRequest)
		})
	}
}
