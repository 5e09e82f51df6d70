// Package musicxml provides a minimal object model over MusicXML
// score-partwise documents: enough structure to inspect recognized
// content (metadata, clefs, time signatures, tempo directions, notes)
// and to combine per-page documents into one score.
//
// Element ordering inside a measure is not round-trip faithful: notes,
// directions and attributes are grouped by kind when re-serialized.
// Downstream consumers read musical content, not engraving layout.
package musicxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Score is the root of a score-partwise document.
type Score struct {
	XMLName        xml.Name        `xml:"score-partwise"`
	Version        string          `xml:"version,attr,omitempty"`
	Work           *Work           `xml:"work,omitempty"`
	Identification *Identification `xml:"identification,omitempty"`
	PartList       PartList        `xml:"part-list"`
	Parts          []Part          `xml:"part"`
}

// Work carries document-level title metadata.
type Work struct {
	Title string `xml:"work-title,omitempty"`
}

// Identification carries creator credits.
type Identification struct {
	Creators []Creator `xml:"creator"`
}

// Creator is one credited contributor, typed by role ("composer", ...).
type Creator struct {
	Type string `xml:"type,attr,omitempty"`
	Name string `xml:",chardata"`
}

// PartList declares the score's parts.
type PartList struct {
	ScoreParts []ScorePart `xml:"score-part"`
}

// ScorePart is one part-list declaration.
type ScorePart struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"part-name,omitempty"`
}

// Part holds the measures of one instrument part.
type Part struct {
	ID       string    `xml:"id,attr"`
	Measures []Measure `xml:"measure"`
}

// Measure groups the recognized elements of one bar.
type Measure struct {
	Number     string       `xml:"number,attr,omitempty"`
	Attributes []Attributes `xml:"attributes"`
	Directions []Direction  `xml:"direction"`
	Notes      []Note       `xml:"note"`
}

// Attributes carries clef and time signature declarations.
type Attributes struct {
	Divisions string    `xml:"divisions,omitempty"`
	Times     []TimeSig `xml:"time"`
	Clefs     []Clef    `xml:"clef"`
}

// Clef is a clef declaration identified by its sign (G, F, C, percussion).
type Clef struct {
	Sign string `xml:"sign"`
	Line string `xml:"line,omitempty"`
}

// TimeSig is a time signature declaration.
type TimeSig struct {
	Beats    string `xml:"beats"`
	BeatType string `xml:"beat-type"`
}

// Ratio renders the signature as "beats/beat-type", e.g. "4/4".
func (t TimeSig) Ratio() string {
	return t.Beats + "/" + t.BeatType
}

// Direction is a playing indication attached to a measure.
type Direction struct {
	Types []DirectionType `xml:"direction-type"`
	Sound *Sound          `xml:"sound,omitempty"`
}

// DirectionType is the payload of a direction element.
type DirectionType struct {
	Words     []string   `xml:"words"`
	Metronome *Metronome `xml:"metronome,omitempty"`
}

// Metronome is an explicit metronome marking.
type Metronome struct {
	BeatUnit  string `xml:"beat-unit,omitempty"`
	PerMinute string `xml:"per-minute,omitempty"`
}

// Sound carries the numeric tempo attribute of a direction.
type Sound struct {
	Tempo string `xml:"tempo,attr,omitempty"`
}

// Note is a note or rest.
type Note struct {
	Pitch    *Pitch    `xml:"pitch,omitempty"`
	Rest     *struct{} `xml:"rest,omitempty"`
	Duration string    `xml:"duration,omitempty"`
	Type     string    `xml:"type,omitempty"`
}

// IsRest reports whether the element is a rest rather than a pitched note.
func (n Note) IsRest() bool {
	return n.Rest != nil
}

// Pitch is the pitch of a note.
type Pitch struct {
	Step   string `xml:"step"`
	Alter  string `xml:"alter,omitempty"`
	Octave string `xml:"octave"`
}

// Decode reads a score-partwise document from r.
func Decode(r io.Reader) (*Score, error) {
	var s Score
	dec := xml.NewDecoder(r)
	// OMR output occasionally declares ISO-8859-1; read it as-is
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode MusicXML: %w", err)
	}
	return &s, nil
}

// Parse reads a score-partwise document from a file.
func Parse(path string) (*Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Title returns the document-level work title, if any.
func (s *Score) Title() string {
	if s.Work == nil {
		return ""
	}
	return strings.TrimSpace(s.Work.Title)
}

// Composer returns the first creator credited as composer, falling back
// to the first creator of any type.
func (s *Score) Composer() string {
	if s.Identification == nil {
		return ""
	}
	for _, c := range s.Identification.Creators {
		if c.Type == "composer" {
			return strings.TrimSpace(c.Name)
		}
	}
	if len(s.Identification.Creators) > 0 {
		return strings.TrimSpace(s.Identification.Creators[0].Name)
	}
	return ""
}

// PartNames returns the declared part names in first-seen order, without
// duplicates, falling back to the part ID where no name is declared.
func (s *Score) PartNames() []string {
	declared := make(map[string]string, len(s.PartList.ScoreParts))
	for _, sp := range s.PartList.ScoreParts {
		declared[sp.ID] = strings.TrimSpace(sp.Name)
	}

	var names []string
	seen := make(map[string]bool)
	for _, p := range s.Parts {
		name := declared[p.ID]
		if name == "" {
			name = p.ID
		}
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Clefs returns every clef declaration across all parts and measures.
func (s *Score) Clefs() []Clef {
	var clefs []Clef
	for _, p := range s.Parts {
		for _, m := range p.Measures {
			for _, a := range m.Attributes {
				clefs = append(clefs, a.Clefs...)
			}
		}
	}
	return clefs
}

// TimeSignatures returns every time signature declaration across all
// parts and measures, in document order.
func (s *Score) TimeSignatures() []TimeSig {
	var sigs []TimeSig
	for _, p := range s.Parts {
		for _, m := range p.Measures {
			for _, a := range m.Attributes {
				sigs = append(sigs, a.Times...)
			}
		}
	}
	return sigs
}

// Directions returns every direction across all parts and measures.
func (s *Score) Directions() []Direction {
	var dirs []Direction
	for _, p := range s.Parts {
		for _, m := range p.Measures {
			dirs = append(dirs, m.Directions...)
		}
	}
	return dirs
}

// CountNotes returns the number of pitched notes and rests in the score.
func (s *Score) CountNotes() (notes, rests int) {
	for _, p := range s.Parts {
		for _, m := range p.Measures {
			for _, n := range m.Notes {
				if n.IsRest() {
					rests++
				} else {
					notes++
				}
			}
		}
	}
	return notes, rests
}

// Merge combines per-page scores into one document by appending each
// page's parts in page order. Part IDs are renumbered P1..Pn so they
// stay unique across pages. Work and identification metadata are taken
// from the first page that carries them.
func Merge(pages []*Score) *Score {
	combined := &Score{Version: "3.1"}

	seq := 0
	for _, page := range pages {
		if page == nil {
			continue
		}
		if combined.Work == nil && page.Work != nil {
			combined.Work = page.Work
		}
		if combined.Identification == nil && page.Identification != nil {
			combined.Identification = page.Identification
		}

		declared := make(map[string]string, len(page.PartList.ScoreParts))
		for _, sp := range page.PartList.ScoreParts {
			declared[sp.ID] = sp.Name
		}

		for _, part := range page.Parts {
			seq++
			id := fmt.Sprintf("P%d", seq)
			combined.PartList.ScoreParts = append(combined.PartList.ScoreParts, ScorePart{
				ID:   id,
				Name: declared[part.ID],
			})
			part.ID = id
			combined.Parts = append(combined.Parts, part)
		}
	}
	return combined
}

const docType = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 3.1 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">` + "\n"

// Encode serializes the score as an uncompressed MusicXML document.
func (s *Score) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header+docType); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode MusicXML: %w", err)
	}
	return enc.Close()
}

// WriteFile serializes the score to path.
func (s *Score) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return s.Encode(f)
}
