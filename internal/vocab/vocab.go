// Package vocab holds the phrase tables that drive speaker attribution,
// clinical-term extraction, and note synthesis.
//
// Tables are plain data. The built-in set is returned by [Default]; a YAML
// file may replace individual lists (see [LoadFile]). A [Source] publishes the
// active tables to concurrent readers and supports hot replacement when the
// vocabulary file changes on disk.
//
// All phrases are stored lower-case. Matching against them is substring-based
// (see package extract), so short entries such as "ct" or "my" will also match
// inside longer words. This is known and kept for compatibility.
package vocab

import (
	"slices"
	"strings"
	"sync/atomic"
)

// Tables is the complete set of vocabulary lists.
type Tables struct {
	// DoctorCues are phrases typical of clinician speech.
	DoctorCues []string `yaml:"doctor_cues"`

	// PatientCues are phrases typical of patient speech. They take precedence
	// over DoctorCues when both match the same utterance.
	PatientCues []string `yaml:"patient_cues"`

	// Medications are known medication names.
	Medications []string `yaml:"medications"`

	// Symptoms are known symptom names.
	Symptoms []string `yaml:"symptoms"`

	// EmergencyAlerts raise critical-severity alerts.
	EmergencyAlerts []string `yaml:"emergency_alerts"`

	// CriticalAlerts raise high-severity alerts.
	CriticalAlerts []string `yaml:"critical_alerts"`

	// MedicationAlerts raise warning-severity alerts.
	MedicationAlerts []string `yaml:"medication_alerts"`

	// TestKeywords mark transcript segments that mention diagnostics or tests.
	TestKeywords []string `yaml:"test_keywords"`
}

var (
	defaultDoctorCues = []string{
		// questions
		"can you describe the pain", "when did this start", "have you experienced this before",
		"are you taking any other medications", "does it hurt when you move",
		// instructions
		"you need to", "i suggest you", "please ensure", "try to avoid", "make sure you",
		// clinical terminology
		"diagnosis", "symptoms", "medication", "prescription", "dosage", "lab results",
		"test report", "blood pressure", "follow-up", "side effects", "refer to specialist",
		"imaging", "ct", "mri", "x-ray", "monitoring", "observation", "chronic", "acute",
		"prognosis", "treatment plan",
		// administrative
		"let me update your chart", "i’ll upload your prescription", "you’ll receive the report by",
		"schedule a follow-up", "please get these tests done",
		// patterns
		"you should", "let me", "i recommend", "please", "i will", "i’ll",
		"i am prescribing", "i am referring", "i am ordering", "i am suggesting", "i am advising",
		"i am recommending", "i am monitoring", "i am updating", "i am uploading", "i am scheduling",
		"i am requesting", "i am instructing", "i am noting", "i am documenting", "i am charting",
		"i am following up", "i am reviewing", "i am checking", "i am evaluating", "i am assessing",
		"i am planning", "i am treating", "i am managing", "i am observing", "i am diagnosing",
	}

	defaultPatientCues = []string{
		// symptom descriptions
		"i feel", "it hurts when", "i’ve been having", "sometimes i get", "it started",
		"i’m not sure what’s wrong", "i get tired easily", "i can’t sleep", "my sugar levels are high",
		// clarification
		"what does this mean", "should i be worried", "do i need to take this forever",
		"can i eat that", "is this normal", "will this go away", "what are the side effects",
		// history
		"i had surgery before", "my father also had this", "i’ve been taking this medicine for",
		"i stopped the medication", "i missed a dose yesterday", "i don’t have any allergies",
		// patterns
		"i have", "i am", "my", "it hurts", "i’m experiencing", "i noticed", "i think",
		"i would like", "i want", "i need", "i don’t know", "i can’t", "i’ve been", "i was",
	}

	defaultMedications = []string{
		// antibiotics
		"amoxicillin", "azithromycin", "ciprofloxacin", "doxycycline", "cephalexin",
		// pain relievers
		"ibuprofen", "acetaminophen", "paracetamol", "naproxen", "aspirin",
		// blood pressure
		"lisinopril", "amlodipine", "hydrochlorothiazide", "metoprolol", "losartan",
		// diabetes
		"metformin", "insulin", "glipizide", "glyburide", "sitagliptin",
		// cholesterol
		"atorvastatin", "simvastatin", "rosuvastatin", "pravastatin", "ezetimibe",
		// antidepressants
		"sertraline", "fluoxetine", "escitalopram", "citalopram", "venlafaxine",
		// asthma
		"albuterol", "fluticasone", "montelukast", "salmeterol", "budesonide",
		// anticoagulants
		"warfarin", "rivaroxaban", "apixaban", "dabigatran", "edoxaban",
	}

	defaultSymptoms = []string{
		"fever", "chills", "fatigue", "headache", "dizziness", "muscle pain", "nausea",
		"vomiting", "rash", "anxiety", "depression", "insomnia", "cough", "sore throat",
		"diarrhea", "constipation", "weight loss", "palpitations",
	}

	defaultEmergencyAlerts = []string{
		"chest pain", "shortness of breath", "difficulty breathing", "severe pain",
		"unconscious", "seizure", "stroke", "heart attack",
	}

	defaultCriticalAlerts = []string{
		"high blood pressure", "low blood pressure", "rapid heart rate", "irregular heartbeat",
		"severe headache", "vision changes", "numbness", "weakness", "confusion",
	}

	defaultMedicationAlerts = []string{
		"allergy", "side effects", "overdose", "wrong dosage", "drug interaction",
		"contraindication", "duplicate prescription",
	}

	defaultTestKeywords = []string{
		"test", "screening", "scan", "profile", "panel", "x-ray", "mri", "ct", "ultrasound",
		"cbc", "blood", "urine", "ecg", "echo", "a1c", "hba1c",
	}
)

// Default returns a fresh copy of the built-in tables. Callers may modify the
// returned value freely.
func Default() *Tables {
	return &Tables{
		DoctorCues:       slices.Clone(defaultDoctorCues),
		PatientCues:      slices.Clone(defaultPatientCues),
		Medications:      slices.Clone(defaultMedications),
		Symptoms:         slices.Clone(defaultSymptoms),
		EmergencyAlerts:  slices.Clone(defaultEmergencyAlerts),
		CriticalAlerts:   slices.Clone(defaultCriticalAlerts),
		MedicationAlerts: slices.Clone(defaultMedicationAlerts),
		TestKeywords:     slices.Clone(defaultTestKeywords),
	}
}

// Merge returns a copy of t in which every non-empty list of override
// replaces the corresponding list. A nil override yields a plain copy.
func (t *Tables) Merge(override *Tables) *Tables {
	out := t.Clone()
	if override == nil {
		return out
	}
	replace := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = normalize(src)
		}
	}
	replace(&out.DoctorCues, override.DoctorCues)
	replace(&out.PatientCues, override.PatientCues)
	replace(&out.Medications, override.Medications)
	replace(&out.Symptoms, override.Symptoms)
	replace(&out.EmergencyAlerts, override.EmergencyAlerts)
	replace(&out.CriticalAlerts, override.CriticalAlerts)
	replace(&out.MedicationAlerts, override.MedicationAlerts)
	replace(&out.TestKeywords, override.TestKeywords)
	return out
}

// Clone returns a deep copy of t.
func (t *Tables) Clone() *Tables {
	return &Tables{
		DoctorCues:       slices.Clone(t.DoctorCues),
		PatientCues:      slices.Clone(t.PatientCues),
		Medications:      slices.Clone(t.Medications),
		Symptoms:         slices.Clone(t.Symptoms),
		EmergencyAlerts:  slices.Clone(t.EmergencyAlerts),
		CriticalAlerts:   slices.Clone(t.CriticalAlerts),
		MedicationAlerts: slices.Clone(t.MedicationAlerts),
		TestKeywords:     slices.Clone(t.TestKeywords),
	}
}

// normalize lower-cases and trims every phrase, dropping blanks and
// duplicates while keeping first-seen order.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Source publishes the active [Tables] to concurrent readers. The zero value
// is not usable; construct one with [NewSource].
type Source struct {
	current atomic.Pointer[Tables]
}

// NewSource returns a Source serving t. A nil t serves [Default].
func NewSource(t *Tables) *Source {
	if t == nil {
		t = Default()
	}
	s := &Source{}
	s.current.Store(t)
	return s
}

// Tables returns the active tables. The returned value must not be modified.
func (s *Source) Tables() *Tables {
	return s.current.Load()
}

// Replace atomically swaps in t. Sessions already in progress pick up the new
// tables on their next utterance.
func (s *Source) Replace(t *Tables) {
	if t == nil {
		return
	}
	s.current.Store(t)
}
