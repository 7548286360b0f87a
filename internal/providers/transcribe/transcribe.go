package transcribe

import "context"

// Segment is a portion of transcribed audio with its timing.
type Segment struct {
	Start float64 `json:"start"` // seconds from the beginning of the file
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is one file's transcription. It is marshaled as-is into the
// recording row.
type Result struct {
	Text            string    `json:"text"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration_seconds"`
	Segments        []Segment `json:"segments"`
}

// Engine converts one local audio file to text with timing segments. Remote
// recordings must be materialized to a local file first.
type Engine interface {
	Transcribe(ctx context.Context, localPath string) (*Result, error)
	Close() error
}
