// Package validate inspects a converted MusicXML document and produces
// a confidence report over five categories: metadata, clefs, time
// signatures, tempo markings, and notes. The confidence figures are
// fixed heuristics keyed to presence of recognized structure; external
// consumers depend on the exact numeric bands, so do not retune them.
package validate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/willardjansen/cubby-score-conversion/pkg/musicxml"
)

// Report is the validation result for one conversion.
type Report struct {
	Metadata          MetadataSection `json:"metadata"`
	Clefs             ClefsSection    `json:"clefs"`
	TimeSignatures    TimeSigSection  `json:"timeSignatures"`
	Tempos            TempoSection    `json:"tempos"`
	Notes             NotesSection    `json:"notes"`
	OverallConfidence float64         `json:"overallConfidence"`
	ProcessingTime    float64         `json:"processingTime"`
	SkippedPages      int             `json:"skippedPages"`
	Error             string          `json:"error,omitempty"`
}

// MetadataSection reports title, composer and instrument extraction.
type MetadataSection struct {
	Title       string   `json:"title"`
	Composer    string   `json:"composer"`
	Instruments []string `json:"instruments"`
	Confidence  int      `json:"confidence"`
}

// ClefsSection reports the clef count and the distinct signs seen.
type ClefsSection struct {
	Detected   int      `json:"detected"`
	Types      []string `json:"types"`
	Confidence int      `json:"confidence"`
}

// TimeSigSection reports distinct time signature ratios in first-seen order.
type TimeSigSection struct {
	Detected   []string `json:"detected"`
	Confidence int      `json:"confidence"`
}

// TempoSection reports tempo marking labels.
type TempoSection struct {
	Detected   []string `json:"detected"`
	Confidence int      `json:"confidence"`
}

// NotesSection reports note and rest counts.
type NotesSection struct {
	Count      int `json:"count"`
	Rests      int `json:"rests"`
	Confidence int `json:"confidence"`
}

// Generate parses the artifact and scores the five categories. A parse
// failure degrades to an all-zero report carrying the error; the
// artifact itself may still be valid, so the job is not failed.
func Generate(artifactPath string, elapsed time.Duration, skippedPages int) *Report {
	report := &Report{
		ProcessingTime: round2(elapsed.Seconds()),
		SkippedPages:   skippedPages,
		Metadata:       MetadataSection{Instruments: []string{}},
		Clefs:          ClefsSection{Types: []string{}},
		TimeSignatures: TimeSigSection{Detected: []string{}},
		Tempos:         TempoSection{Detected: []string{}},
	}

	score, err := musicxml.Parse(artifactPath)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	report.Metadata = extractMetadata(score)
	report.Clefs = extractClefs(score)
	report.TimeSignatures = extractTimeSignatures(score)
	report.Tempos = extractTempos(score)
	report.Notes = extractNotes(score)

	sum := report.Metadata.Confidence +
		report.Clefs.Confidence +
		report.TimeSignatures.Confidence +
		report.Tempos.Confidence +
		report.Notes.Confidence
	report.OverallConfidence = round1(float64(sum) / 5)

	return report
}

// extractMetadata scores 40 for a title, 30 for a composer, 30 for at
// least one instrument name, capped at 100.
func extractMetadata(score *musicxml.Score) MetadataSection {
	s := MetadataSection{
		Title:       score.Title(),
		Composer:    score.Composer(),
		Instruments: score.PartNames(),
	}
	if s.Instruments == nil {
		s.Instruments = []string{}
	}

	if s.Title != "" {
		s.Confidence += 40
	}
	if s.Composer != "" {
		s.Confidence += 30
	}
	if len(s.Instruments) > 0 {
		s.Confidence += 30
	}
	if s.Confidence > 100 {
		s.Confidence = 100
	}
	return s
}

func extractClefs(score *musicxml.Score) ClefsSection {
	s := ClefsSection{Types: []string{}}
	seen := make(map[string]bool)
	for _, c := range score.Clefs() {
		s.Detected++
		if c.Sign != "" && !seen[c.Sign] {
			seen[c.Sign] = true
			s.Types = append(s.Types, c.Sign)
		}
	}
	if s.Detected > 0 {
		s.Confidence = 98
	}
	return s
}

func extractTimeSignatures(score *musicxml.Score) TimeSigSection {
	s := TimeSigSection{Detected: []string{}}
	seen := make(map[string]bool)
	for _, ts := range score.TimeSignatures() {
		ratio := ts.Ratio()
		if !seen[ratio] {
			seen[ratio] = true
			s.Detected = append(s.Detected, ratio)
		}
	}
	if len(s.Detected) > 0 {
		s.Confidence = 95
	}
	return s
}

// tempoTerms is the conventional Italian tempo vocabulary recognized as
// a generic tempo indication when no metronome mark accompanies it.
var tempoTerms = []string{
	"grave", "largo", "larghetto", "lento", "adagio", "andante",
	"andantino", "moderato", "allegretto", "allegro", "vivace",
	"presto", "prestissimo",
}

func isTempoTerm(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range tempoTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// extractTempos collects tempo labels, preferring explicit text and
// synthesizing "♩=<bpm>" from the numeric value otherwise. Generic
// tempo indications are added afterwards if not already present.
// Missing tempo markings are common, so absence scores 50 rather than 0.
func extractTempos(score *musicxml.Score) TempoSection {
	s := TempoSection{Detected: []string{}}
	seen := make(map[string]bool)
	add := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			s.Detected = append(s.Detected, label)
		}
	}

	dirs := score.Directions()

	// metronome marks first
	for _, d := range dirs {
		var metro *musicxml.Metronome
		var words string
		for _, dt := range d.Types {
			if metro == nil && dt.Metronome != nil {
				metro = dt.Metronome
			}
			for _, w := range dt.Words {
				if words == "" && strings.TrimSpace(w) != "" {
					words = strings.TrimSpace(w)
				}
			}
		}

		hasTempo := metro != nil || (d.Sound != nil && d.Sound.Tempo != "")
		if !hasTempo {
			continue
		}

		label := words
		if label == "" {
			if metro != nil {
				if bpm, ok := parseBPM(metro.PerMinute); ok {
					label = "♩=" + strconv.Itoa(bpm)
				}
			}
			if label == "" && d.Sound != nil {
				if bpm, ok := parseBPM(d.Sound.Tempo); ok {
					label = "♩=" + strconv.Itoa(bpm)
				}
			}
		}
		add(label)
	}

	// generic tempo indications carried as plain words
	for _, d := range dirs {
		for _, dt := range d.Types {
			if dt.Metronome != nil {
				continue
			}
			for _, w := range dt.Words {
				text := strings.TrimSpace(w)
				if text != "" && isTempoTerm(text) {
					add(text)
				}
			}
		}
	}

	if len(s.Detected) > 0 {
		s.Confidence = 90
	} else {
		s.Confidence = 50
	}
	return s
}

// extractNotes scores a step function of the note count: more
// recognized notes implies higher trust in recognition completeness.
func extractNotes(score *musicxml.Score) NotesSection {
	notes, rests := score.CountNotes()
	s := NotesSection{Count: notes, Rests: rests}
	switch {
	case notes > 100:
		s.Confidence = 85
	case notes > 50:
		s.Confidence = 80
	case notes > 10:
		s.Confidence = 70
	case notes > 0:
		s.Confidence = 60
	default:
		s.Confidence = 0
	}
	return s
}

func parseBPM(value string) (int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
