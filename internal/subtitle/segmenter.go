package subtitle

import (
	"strings"
	"unicode/utf8"

	"scribeeasy/internal/provider"
)

const (
	// Utterances shorter than this are emitted as a single cue without
	// attempting a sentence split.
	shortUtteranceChars = 100

	// Floor applied to each sentence's proportional share of an utterance
	// span. The floor favors readability over strict additivity: the summed
	// sentence durations may exceed the utterance span when many short
	// sentences occur, which the tail pin corrects only for the final cue.
	minSentenceSeconds = 0.5

	// Maximum span of a word-accumulated cue before a forced split
	maxSegmentSeconds = 5.0
)

// BuildSegments turns a completed transcript's timing data into an ordered
// subtitle cue sequence. Utterances are preferred; the flat word list is the
// fallback when the provider produced no utterances. A transcript with
// neither yields an empty sequence.
//
// Timestamps are trusted as-is: the engine does not defend against negative
// or inverted millisecond values, the caller must feed well-formed provider
// output.
func BuildSegments(utterances []provider.Utterance, words []provider.Word) []Segment {
	if len(utterances) > 0 {
		return segmentsFromUtterances(utterances)
	}
	return segmentsFromWords(words)
}

// segmentsFromUtterances emits one cue per short or unpunctuated utterance
// and splits longer utterances into sentence-sized cues with time allocated
// proportionally to character count.
func segmentsFromUtterances(utterances []provider.Utterance) []Segment {
	segments := make([]Segment, 0, len(utterances))

	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}

		start := float64(u.StartMs) / 1000.0
		end := float64(u.EndMs) / 1000.0

		if utf8.RuneCountInString(text) < shortUtteranceChars || !strings.ContainsAny(text, ".!?") {
			segments = append(segments, Segment{
				Start:   start,
				End:     end,
				Text:    text,
				Speaker: u.Speaker,
			})
			continue
		}

		segments = append(segments, splitUtterance(text, start, end, u.Speaker)...)
	}

	return segments
}

// splitUtterance distributes the utterance span across its sentences in
// proportion to character count, with a per-sentence floor. Boundaries
// accumulate from the utterance start; the last sentence is pinned to the
// utterance end so no drift escapes the utterance boundary.
func splitUtterance(text string, start, end float64, speaker string) []Segment {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return []Segment{{Start: start, End: end, Text: text, Speaker: speaker}}
	}

	totalChars := 0
	for _, s := range sentences {
		totalChars += utf8.RuneCountInString(s)
	}

	duration := end - start
	segments := make([]Segment, 0, len(sentences))
	cursor := start

	for i, s := range sentences {
		share := float64(utf8.RuneCountInString(s)) / float64(totalChars) * duration
		if share < minSentenceSeconds {
			share = minSentenceSeconds
		}

		segEnd := cursor + share
		if i == len(sentences)-1 {
			segEnd = end
		}

		segments = append(segments, Segment{
			Start:   cursor,
			End:     segEnd,
			Text:    s,
			Speaker: speaker,
		})
		cursor = segEnd
	}

	return segments
}

// splitSentences splits text at sentence-ending punctuation runs, keeping
// each run attached to the sentence it terminates. Empty fragments are
// discarded.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if !isSentenceEnd(r) {
			continue
		}
		// Keep consecutive punctuation attached to the same sentence
		if i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			continue
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// endsWithSentencePunct reports whether a word closes a sentence
func endsWithSentencePunct(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// segmentsFromWords accumulates words into cues, closing the current cue on a
// speaker change, a sentence-ending word, or once the cue span exceeds the
// length cap, in that priority. A speaker change closes the cue before the
// new speaker's word so each cue carries only one speaker's words; the other
// two splits close the cue including the word that triggered them.
func segmentsFromWords(words []provider.Word) []Segment {
	var segments []Segment
	var parts []string
	var segStart float64
	var segSpeaker string
	var lastEnd float64

	flush := func(end float64) {
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text != "" {
			segments = append(segments, Segment{
				Start:   segStart,
				End:     end,
				Text:    text,
				Speaker: segSpeaker,
			})
		}
		parts = parts[:0]
	}

	for _, w := range words {
		wordEnd := float64(w.EndMs) / 1000.0

		if len(parts) > 0 && w.Speaker != "" && segSpeaker != "" && w.Speaker != segSpeaker {
			flush(lastEnd)
		}

		if len(parts) == 0 {
			segStart = float64(w.StartMs) / 1000.0
			segSpeaker = w.Speaker
		}

		parts = append(parts, w.Text)
		lastEnd = wordEnd

		if endsWithSentencePunct(w.Text) || wordEnd-segStart > maxSegmentSeconds {
			flush(wordEnd)
		}
	}

	if len(parts) > 0 {
		flush(lastEnd)
	}

	return segments
}
