package note

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/vocab"
	"github.com/docassist/docassist/internal/vocab/phonetic"
)

// Edit errors.
var (
	ErrNotEditing     = errors.New("note: no edit in progress")
	ErrAlreadyEditing = errors.New("note: edit already in progress")
	ErrUnknownList    = errors.New("note: unknown list")
	ErrIndexRange     = errors.New("note: index out of range")
	ErrEmptyItem      = errors.New("note: empty item")
)

// List names an editable entity list.
type List string

const (
	ListSymptoms    List = "symptoms"
	ListMedications List = "medications"
)

// Draft is the doctor's working copy of the editable parts of a note.
type Draft struct {
	Symptoms    []string `json:"symptoms"`
	Medications []string `json:"medications"`
	Notes       string   `json:"notes"`
	Summary     string   `json:"summary"`
}

func (d *Draft) list(l List) (*[]string, error) {
	switch l {
	case ListSymptoms:
		return &d.Symptoms, nil
	case ListMedications:
		return &d.Medications, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownList, l)
}

func (d *Draft) clone() Draft {
	return Draft{
		Symptoms:    slices.Clone(d.Symptoms),
		Medications: slices.Clone(d.Medications),
		Notes:       d.Notes,
		Summary:     d.Summary,
	}
}

// Canonicalizer maps a typed item onto a known term for the list. It
// returns the input unchanged when nothing matches.
type Canonicalizer interface {
	Canonical(l List, item string) string
}

// VocabCanonicalizer matches against the active vocabulary phonetically.
type VocabCanonicalizer struct {
	Source  *vocab.Source
	Matcher *phonetic.Matcher
}

// Canonical implements [Canonicalizer].
func (v VocabCanonicalizer) Canonical(l List, item string) string {
	t := v.Source.Tables()
	var terms []string
	switch l {
	case ListSymptoms:
		terms = t.Symptoms
	case ListMedications:
		terms = t.Medications
	}
	got, _, _ := v.Matcher.Canonicalize(item, terms)
	return got
}

// Editor holds at most one working copy for a note. Nothing changes on the
// note until Save. Editor is not safe for concurrent use; the owning
// session serialises access.
type Editor struct {
	note  *SessionNote
	canon Canonicalizer
	draft *Draft
}

// NewEditor returns an editor for n. canon may be nil, in which case items
// are stored as typed (trimmed).
func NewEditor(n *SessionNote, canon Canonicalizer) *Editor {
	return &Editor{note: n, canon: canon}
}

// Open starts a working copy seeded from the note.
func (e *Editor) Open() (Draft, error) {
	if e.draft != nil {
		return Draft{}, ErrAlreadyEditing
	}
	e.draft = &Draft{
		Symptoms:    slices.Clone(e.note.Symptoms),
		Medications: slices.Clone(e.note.Medications),
		Notes:       e.note.Notes,
		Summary:     e.note.Summary,
	}
	return e.draft.clone(), nil
}

// Editing reports whether a working copy is open.
func (e *Editor) Editing() bool { return e.draft != nil }

// Draft returns a copy of the working copy.
func (e *Editor) Draft() (Draft, error) {
	if e.draft == nil {
		return Draft{}, ErrNotEditing
	}
	return e.draft.clone(), nil
}

// Add appends item to list l after canonicalisation and returns the stored
// value.
func (e *Editor) Add(l List, item string) (string, error) {
	if e.draft == nil {
		return "", ErrNotEditing
	}
	dst, err := e.draft.list(l)
	if err != nil {
		return "", err
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return "", ErrEmptyItem
	}
	if e.canon != nil {
		item = e.canon.Canonical(l, item)
	}
	*dst = append(*dst, item)
	return item, nil
}

// Remove deletes the item at index i of list l.
func (e *Editor) Remove(l List, i int) error {
	if e.draft == nil {
		return ErrNotEditing
	}
	dst, err := e.draft.list(l)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(*dst) {
		return fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	*dst = slices.Delete(*dst, i, i+1)
	return nil
}

// SetText replaces the draft notes and/or summary. Nil leaves a field as is.
func (e *Editor) SetText(notes, summary *string) error {
	if e.draft == nil {
		return ErrNotEditing
	}
	if notes != nil {
		e.draft.Notes = *notes
	}
	if summary != nil {
		e.draft.Summary = *summary
	}
	return nil
}

// Save commits the working copy into the note, regenerates the record body
// with the edited text appended, and closes the edit.
func (e *Editor) Save(now time.Time) (*SessionNote, error) {
	if e.draft == nil {
		return nil, ErrNotEditing
	}
	d := e.draft
	n := e.note

	n.Symptoms = slices.Clone(d.Symptoms)
	n.Medications = slices.Clone(d.Medications)
	n.Notes = d.Notes
	n.Summary = d.Summary
	n.Record.ValueString = ValueString(n.Segments, n.Medications, n.Symptoms) +
		"\n\nEdited Notes: " + d.Notes +
		"\nEdited Summary: " + d.Summary
	n.Record.Note = []Annotation{{Text: editedNote}}
	n.EditedAt = now

	e.draft = nil
	return n.Clone(), nil
}

// Cancel discards the working copy.
func (e *Editor) Cancel() error {
	if e.draft == nil {
		return ErrNotEditing
	}
	e.draft = nil
	return nil
}
