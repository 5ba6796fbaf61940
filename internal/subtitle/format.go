package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Format selects a subtitle output encoding
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
	FormatTXT Format = "txt"
)

// ParseFormat normalizes a format selector string
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatTXT:
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// ToSRT converts segments to SRT format with speaker labels
func ToSRT(segments []Segment) string {
	var lines []string

	for i, segment := range segments {
		text := segment.Text
		if segment.Speaker != "" {
			text = fmt.Sprintf("[%s] %s", segment.Speaker, text)
		}

		lines = append(lines, fmt.Sprintf("%d", i+1))
		lines = append(lines, fmt.Sprintf("%s --> %s", secondsToSRTTime(segment.Start), secondsToSRTTime(segment.End)))
		lines = append(lines, text)
		lines = append(lines, "") // Empty line between segments
	}

	return strings.Join(lines, "\n")
}

// ToVTT converts segments to WebVTT format with speaker voice tags
func ToVTT(segments []Segment) string {
	lines := []string{"WEBVTT", ""}

	for _, segment := range segments {
		text := segment.Text
		if segment.Speaker != "" {
			text = fmt.Sprintf("<v %s>%s", segment.Speaker, text)
		}

		lines = append(lines, fmt.Sprintf("%s --> %s", secondsToVTTTime(segment.Start), secondsToVTTTime(segment.End)))
		lines = append(lines, text)
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// ToTXT converts to plain text. Full text is preferred with whitespace runs
// collapsed; otherwise segment texts are joined line by line with speaker
// labels. Returns an empty string when neither is available.
func ToTXT(text string, segments []Segment) string {
	if text != "" {
		return whitespaceRuns.ReplaceAllString(strings.TrimSpace(text), " ")
	}

	if len(segments) > 0 {
		lines := make([]string, 0, len(segments))
		for _, segment := range segments {
			if segment.Speaker != "" {
				lines = append(lines, fmt.Sprintf("[%s] %s", segment.Speaker, segment.Text))
			} else {
				lines = append(lines, segment.Text)
			}
		}
		return strings.Join(lines, "\n")
	}

	return ""
}

// Render produces the byte content for the requested format
func Render(format Format, text string, segments []Segment) string {
	switch format {
	case FormatSRT:
		return ToSRT(segments)
	case FormatVTT:
		return ToVTT(segments)
	default:
		return ToTXT(text, segments)
	}
}

// ContentType returns the MIME content type for a format, defaulting to
// text/plain for unrecognized selectors.
func ContentType(format Format) string {
	switch format {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	default:
		return "text/plain"
	}
}

// FileExtension returns the filename extension for a format, defaulting to
// .txt for unrecognized selectors.
func FileExtension(format Format) string {
	switch format {
	case FormatSRT:
		return ".srt"
	case FormatVTT:
		return ".vtt"
	default:
		return ".txt"
	}
}

// secondsToSRTTime converts seconds to the SRT time format HH:MM:SS,mmm.
// Every field is truncated, not rounded; consumers depend on byte-exact
// output.
func secondsToSRTTime(seconds float64) string {
	hours, minutes, secs, millis := splitClock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// secondsToVTTTime converts seconds to the WebVTT time format HH:MM:SS.mmm
func secondsToVTTTime(seconds float64) string {
	hours, minutes, secs, millis := splitClock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

func splitClock(seconds float64) (hours, minutes, secs, millis int) {
	hours = int(seconds / 3600)
	minutes = int(math.Mod(seconds, 3600) / 60)
	secs = int(math.Mod(seconds, 60))
	// Multiply before truncating: math.Mod(seconds, 1) reintroduces float64
	// representation error and drops a millisecond for values like 3725.999.
	millis = int(seconds*1000) % 1000
	return hours, minutes, secs, millis
}
