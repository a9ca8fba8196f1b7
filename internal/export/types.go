package export

// Request asks for a video's highlight EDL to be written into OutputDir.
type Request struct {
	OutputDir string `json:"output_dir"`
	Title     string `json:"title,omitempty"`
}

// Event is one record of an edit decision list. Times are seconds in the source.
type Event struct {
	Name      string
	MediaPath string
	Start     float64
	End       float64
	Comment   string
}

type Response struct {
	Status     string  `json:"status"`
	Format     string  `json:"format"`
	OutputPath string  `json:"output_path"`
	ClipCount  int     `json:"clip_count"`
	FrameRate  float64 `json:"frame_rate"`
}
