package subtitle

import "fmt"

// Segment represents a single timed subtitle cue. Segments are created by the
// segmentation engine and are read-only afterwards. Start and End are in
// seconds; Speaker is empty when diarization was unavailable.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Validate checks if the Segment has valid values
func (s *Segment) Validate() error {
	if s.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if s.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}

	if s.End <= s.Start {
		return fmt.Errorf("end must be greater than start")
	}

	return nil
}
