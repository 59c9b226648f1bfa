package note

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/transcript"
)

// Record constants for the Observation resource.
const (
	categorySystem  = "http://terminology.hl7.org/CodeSystem/observation-category"
	loincSystem     = "http://loinc.org"
	progressNote    = "11506-3"
	generatedNote   = "AI-generated note from voice transcription"
	editedNote      = "AI-generated note from voice transcription (edited by doctor)"
	examplePatient  = "Patient/example"
	recordIDPrefix  = "voice-note-"
	noneListedValue = "None"
)

// Coding is a FHIR Coding.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// CodeableConcept is a FHIR CodeableConcept.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
}

// Reference is a FHIR Reference.
type Reference struct {
	Reference string `json:"reference"`
	Display   string `json:"display"`
}

// Annotation is a FHIR Annotation.
type Annotation struct {
	Text string `json:"text"`
}

// Observation is the subset of a FHIR Observation the service emits.
type Observation struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Category          []CodeableConcept `json:"category"`
	Code              CodeableConcept   `json:"code"`
	Subject           Reference         `json:"subject"`
	EffectiveDateTime time.Time         `json:"effectiveDateTime"`
	ValueString       string            `json:"valueString"`
	Note              []Annotation      `json:"note"`
}

func (o Observation) clone() Observation {
	c := o
	c.Category = make([]CodeableConcept, len(o.Category))
	for i, cc := range o.Category {
		c.Category[i] = CodeableConcept{Coding: slices.Clone(cc.Coding)}
	}
	c.Code = CodeableConcept{Coding: slices.Clone(o.Code.Coding)}
	c.Note = slices.Clone(o.Note)
	return c
}

// BuildRecord assembles the Observation for a session.
func BuildRecord(segments []transcript.Segment, medications, symptoms []string, patient *Patient, at time.Time) Observation {
	subject := Reference{Reference: examplePatient, Display: patient.Display()}
	if patient != nil && patient.ID != "" {
		subject.Reference = "Patient/" + patient.ID
	}
	return Observation{
		ResourceType: "Observation",
		ID:           fmt.Sprintf("%s%d", recordIDPrefix, at.UnixMilli()),
		Status:       "final",
		Category: []CodeableConcept{{Coding: []Coding{{
			System:  categorySystem,
			Code:    "clinical-note",
			Display: "Clinical Note",
		}}}},
		Code: CodeableConcept{Coding: []Coding{{
			System:  loincSystem,
			Code:    progressNote,
			Display: "Progress note",
		}}},
		Subject:           subject,
		EffectiveDateTime: at.UTC(),
		ValueString:       ValueString(segments, medications, symptoms),
		Note:              []Annotation{{Text: generatedNote}},
	}
}

// ValueString renders the record body:
//
//	Medications: a, b
//	Symptoms: None
//	Conversation:
//	Doctor: ...
//	Patient: ...
func ValueString(segments []transcript.Segment, medications, symptoms []string) string {
	var sb strings.Builder
	sb.WriteString("Medications: ")
	sb.WriteString(listOrNone(medications))
	sb.WriteString("\nSymptoms: ")
	sb.WriteString(listOrNone(symptoms))
	sb.WriteString("\nConversation:\n")
	sb.WriteString(Conversation(segments))
	return sb.String()
}

// Conversation renders segments as speaker-prefixed lines.
func Conversation(segments []transcript.Segment) string {
	lines := make([]string, len(segments))
	for i, s := range segments {
		lines[i] = s.Line()
	}
	return strings.Join(lines, "\n")
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return noneListedValue
	}
	return strings.Join(items, ", ")
}
