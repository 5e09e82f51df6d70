package musicxml

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleScore = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="3.1">
  <work><work-title>Gymnopedie No. 1</work-title></work>
  <identification>
    <creator type="composer">Erik Satie</creator>
    <creator type="lyricist">Anonymous</creator>
  </identification>
  <part-list>
    <score-part id="P1"><part-name>Piano</part-name></score-part>
  </part-list>
  <part id="P1">
    <measure number="1">
      <attributes>
        <divisions>4</divisions>
        <time><beats>3</beats><beat-type>4</beat-type></time>
        <clef><sign>G</sign><line>2</line></clef>
      </attributes>
      <direction>
        <direction-type>
          <metronome><beat-unit>quarter</beat-unit><per-minute>60</per-minute></metronome>
        </direction-type>
        <sound tempo="60"/>
      </direction>
      <note><pitch><step>G</step><octave>4</octave></pitch><duration>4</duration></note>
      <note><rest/><duration>4</duration></note>
      <note><pitch><step>D</step><octave>5</octave></pitch><duration>4</duration></note>
    </measure>
    <measure number="2">
      <note><pitch><step>F</step><octave>4</octave></pitch><duration>12</duration></note>
    </measure>
  </part>
</score-partwise>`

func parseSample(t *testing.T, doc string) *Score {
	t.Helper()
	s, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return s
}

func TestDecodeExtractsMetadata(t *testing.T) {
	s := parseSample(t, sampleScore)

	if s.Title() != "Gymnopedie No. 1" {
		t.Errorf("Title() = %q", s.Title())
	}
	if s.Composer() != "Erik Satie" {
		t.Errorf("Composer() = %q", s.Composer())
	}
	names := s.PartNames()
	if len(names) != 1 || names[0] != "Piano" {
		t.Errorf("PartNames() = %v", names)
	}
}

func TestComposerFallsBackToFirstCreator(t *testing.T) {
	s := parseSample(t, `<score-partwise>
  <identification><creator type="arranger">J. Doe</creator></identification>
  <part-list/>
</score-partwise>`)
	if s.Composer() != "J. Doe" {
		t.Errorf("Composer() = %q, want fallback to first creator", s.Composer())
	}
}

func TestPartNameFallsBackToPartID(t *testing.T) {
	s := parseSample(t, `<score-partwise>
  <part-list><score-part id="P1"/></part-list>
  <part id="P1"><measure number="1"/></part>
</score-partwise>`)
	names := s.PartNames()
	if len(names) != 1 || names[0] != "P1" {
		t.Errorf("PartNames() = %v, want [P1]", names)
	}
}

func TestTraversalCounts(t *testing.T) {
	s := parseSample(t, sampleScore)

	clefs := s.Clefs()
	if len(clefs) != 1 || clefs[0].Sign != "G" {
		t.Errorf("Clefs() = %v", clefs)
	}

	sigs := s.TimeSignatures()
	if len(sigs) != 1 || sigs[0].Ratio() != "3/4" {
		t.Errorf("TimeSignatures() = %v", sigs)
	}

	notes, rests := s.CountNotes()
	if notes != 3 || rests != 1 {
		t.Errorf("CountNotes() = (%d, %d), want (3, 1)", notes, rests)
	}

	dirs := s.Directions()
	if len(dirs) != 1 {
		t.Fatalf("Directions() = %v", dirs)
	}
	if dirs[0].Types[0].Metronome == nil || dirs[0].Types[0].Metronome.PerMinute != "60" {
		t.Errorf("metronome not decoded: %+v", dirs[0])
	}
	if dirs[0].Sound == nil || dirs[0].Sound.Tempo != "60" {
		t.Errorf("sound tempo not decoded: %+v", dirs[0].Sound)
	}
}

func TestMergeAppendsPartsInOrder(t *testing.T) {
	pageA := parseSample(t, sampleScore)
	pageB := parseSample(t, `<score-partwise>
  <part-list>
    <score-part id="P1"><part-name>Violin</part-name></score-part>
    <score-part id="P2"><part-name>Cello</part-name></score-part>
  </part-list>
  <part id="P1"><measure number="1"><note><pitch><step>A</step><octave>4</octave></pitch></note></measure></part>
  <part id="P2"><measure number="1"><note><rest/></note></measure></part>
</score-partwise>`)

	combined := Merge([]*Score{pageA, pageB})

	if len(combined.Parts) != 3 {
		t.Fatalf("merged part count = %d, want 3", len(combined.Parts))
	}
	for i, want := range []string{"P1", "P2", "P3"} {
		if combined.Parts[i].ID != want {
			t.Errorf("part %d ID = %s, want %s", i, combined.Parts[i].ID, want)
		}
	}
	names := combined.PartNames()
	want := []string{"Piano", "Violin", "Cello"}
	if len(names) != 3 {
		t.Fatalf("merged part names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("part name %d = %q, want %q", i, names[i], want[i])
		}
	}
	// metadata comes from the first page carrying it
	if combined.Title() != "Gymnopedie No. 1" {
		t.Errorf("merged title = %q", combined.Title())
	}
}

func TestMergeSkipsNilPages(t *testing.T) {
	page := parseSample(t, sampleScore)
	combined := Merge([]*Score{nil, page, nil})
	if len(combined.Parts) != 1 {
		t.Errorf("merged part count = %d, want 1", len(combined.Parts))
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	s := parseSample(t, sampleScore)
	path := filepath.Join(t.TempDir(), "out.musicxml")

	if err := s.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("<!DOCTYPE score-partwise")) {
		t.Error("serialized document missing DOCTYPE")
	}

	reparsed, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse of serialized output failed: %v", err)
	}
	if reparsed.Title() != s.Title() {
		t.Errorf("title lost in round trip: %q", reparsed.Title())
	}
	notes, rests := reparsed.CountNotes()
	if notes != 3 || rests != 1 {
		t.Errorf("notes lost in round trip: (%d, %d)", notes, rests)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("this is not XML")); err == nil {
		t.Error("expected decode error")
	}
}
