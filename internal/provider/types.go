package provider

import "context"

// Status is the canonical form of the provider's transcript state. Raw wire
// strings are converted to a Status at the JSON boundary so the rest of the
// system never compares ad hoc strings.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	// StatusUnknown covers any wire value outside the documented set. Callers
	// treat it the same as an in-flight state.
	StatusUnknown Status = "unknown"
)

// ParseStatus normalizes a wire status string to a Status
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether no further status changes can occur
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Utterance is a provider-grouped contiguous speech turn with millisecond
// timestamps and a speaker label.
type Utterance struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start"`
	EndMs   int64  `json:"end"`
	Speaker string `json:"speaker"`
}

// Word is a single recognized word with millisecond timestamps. Speaker is
// empty when diarization did not attribute the word.
type Word struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start"`
	EndMs   int64  `json:"end"`
	Speaker string `json:"speaker,omitempty"`
}

// Transcript is the provider's view of one transcription job. Text, timing
// and confidence fields are only meaningful when Status is StatusCompleted;
// Error only when Status is StatusError.
type Transcript struct {
	ID              string
	Status          Status
	Text            string
	Confidence      float64
	AudioDurationMs int64
	Utterances      []Utterance
	Words           []Word
	Error           string
}

// Profile is the recognition configuration sent with a submission
type Profile struct {
	SpeechModel   string `json:"speech_model"`
	Punctuate     bool   `json:"punctuate"`
	FormatText    bool   `json:"format_text"`
	SpeakerLabels bool   `json:"speaker_labels"`
}

// DefaultProfile returns the fixed recognition profile used for every
// submission: highest-accuracy model, punctuation and formatting on, speaker
// diarization on, all other enrichments off.
func DefaultProfile() Profile {
	return Profile{
		SpeechModel:   "slam-1",
		Punctuate:     true,
		FormatText:    true,
		SpeakerLabels: true,
	}
}

// Provider is the capability contract the core consumes from the external
// transcription service. Implementations must honor context cancellation on
// both calls.
type Provider interface {
	// Submit uploads the media file and starts a transcription job,
	// returning the provider-issued job identifier.
	Submit(ctx context.Context, filePath string, profile Profile) (string, error)
	// GetTranscript fetches the current state of a previously submitted job
	GetTranscript(ctx context.Context, id string) (*Transcript, error)
}
