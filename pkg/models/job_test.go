package models

import (
	"strings"
	"testing"
)

func TestClassifyInput(t *testing.T) {
	cases := []struct {
		filename string
		want     InputType
		ok       bool
	}{
		{"sonata.pdf", InputPDF, true},
		{"Sonata.PDF", InputPDF, true},
		{"page.png", InputImage, true},
		{"page.jpg", InputImage, true},
		{"page.JPEG", InputImage, true},
		{"score.musicxml", "", false},
		{"notes.txt", "", false},
		{"noextension", "", false},
	}

	for _, c := range cases {
		got, ok := ClassifyInput(c.filename)
		if ok != c.ok || got != c.want {
			t.Errorf("ClassifyInput(%q) = (%q, %v), want (%q, %v)", c.filename, got, ok, c.want, c.ok)
		}
	}
}

func TestConversionJobOutputName(t *testing.T) {
	job := NewConversionJob("moonlight sonata.pdf", "audiveris", InputPDF)

	if job.ID == "" {
		t.Fatal("expected non-empty job ID")
	}
	if job.Stem() != "moonlight sonata" {
		t.Errorf("Stem() = %q, want %q", job.Stem(), "moonlight sonata")
	}

	name := job.OutputName()
	if !strings.HasPrefix(name, job.Timestamp+"_") {
		t.Errorf("output name %q missing timestamp prefix %q", name, job.Timestamp)
	}
	if !strings.HasSuffix(name, "moonlight sonata.musicxml") {
		t.Errorf("output name %q missing stem and extension", name)
	}
}

func TestConversionJobUniqueIDs(t *testing.T) {
	a := NewConversionJob("a.pdf", "audiveris", InputPDF)
	b := NewConversionJob("a.pdf", "audiveris", InputPDF)
	if a.ID == b.ID {
		t.Errorf("two jobs share ID %s", a.ID)
	}
}

func TestEngineDescriptorAccepts(t *testing.T) {
	batch := EngineDescriptor{ID: "audiveris", AcceptsImages: false}
	paged := EngineDescriptor{ID: "homr", AcceptsImages: true}

	if !batch.Accepts(InputPDF) {
		t.Error("batch engine should accept PDF")
	}
	if batch.Accepts(InputImage) {
		t.Error("batch engine should reject images")
	}
	if !paged.Accepts(InputImage) || !paged.Accepts(InputPDF) {
		t.Error("page engine should accept both input types")
	}
}
