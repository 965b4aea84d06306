// Package intake normalizes raw study-intake payloads into the canonical
// form consumed by screening, readiness, and drafting.
package intake

import (
	"fmt"
	"strings"
)

// Form is the canonical intake record. Wizard payloads arrive as loose JSON
// (booleans as "yes"/"on", lists as comma strings), so Form is always built
// through Normalize rather than decoded directly.
type Form struct {
	StudyTitle     string `json:"studyTitle"`
	Institution    string `json:"institution"`
	CourseName     string `json:"courseName"`
	ProjectPurpose string `json:"projectPurpose"`

	ParticipantGroups     []string `json:"participantGroups"`
	DataCollectionMethods []string `json:"dataCollectionMethods"`
	RecruiterRole         string   `json:"recruiterRole"`
	IncludesMinors        string   `json:"includesMinors"`

	ParticipationVoluntary      bool `json:"participationVoluntary"`
	OffersExtraCredit           bool `json:"offersExtraCredit"`
	AlternativeActivityProvided bool `json:"alternativeActivityProvided"`
	AIAffectsOfficialGrades     bool `json:"aiAffectsOfficialGrades"`
	ResearchSeparateFromGrades  bool `json:"researchSeparateFromGrades"`

	CollectsIdentifiers      bool     `json:"collectsIdentifiers"`
	IdentifierTypes          []string `json:"identifierTypes"`
	CollectsEducationRecords bool     `json:"collectsEducationRecords"`
	CollectsSensitive        bool     `json:"collectsSensitive"`
	DeidentifyBeforeAnalysis bool     `json:"deidentifyBeforeAnalysis"`

	StorageLocation string `json:"storageLocation"`
	AccessRoles     string `json:"accessRoles"`
	RetentionPeriod string `json:"retentionPeriod"`
	ThirdPartyTools string `json:"thirdPartyTools"`

	IRBProfileID string `json:"irbProfileId"`

	// raw keeps the original payload keys for profile-driven required-field
	// checks, which may reference fields outside the canonical set.
	raw map[string]any
}

// FieldError reports a payload field whose value could not be interpreted.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("intake field %q: %s", e.Field, e.Reason)
}

// Normalize shapes a decoded JSON object into a Form. Scalars coerce the way
// the wizard sends them; a structurally wrong value (an object where a scalar
// or list belongs) is a FieldError naming the offending field.
func Normalize(raw map[string]any) (Form, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	f := Form{raw: raw}

	var err error
	set := func(dst *string, key string) {
		if err != nil {
			return
		}
		*dst, err = stringField(raw, key)
	}
	setList := func(dst *[]string, key string) {
		if err != nil {
			return
		}
		*dst, err = listField(raw, key)
	}
	setBool := func(dst *bool, key string) {
		if err != nil {
			return
		}
		*dst, err = boolField(raw, key)
	}

	set(&f.StudyTitle, "studyTitle")
	set(&f.Institution, "institution")
	set(&f.CourseName, "courseName")
	set(&f.ProjectPurpose, "projectPurpose")
	setList(&f.ParticipantGroups, "participantGroups")
	setList(&f.DataCollectionMethods, "dataCollectionMethods")
	set(&f.RecruiterRole, "recruiterRole")
	set(&f.IncludesMinors, "includesMinors")
	setBool(&f.ParticipationVoluntary, "participationVoluntary")
	setBool(&f.OffersExtraCredit, "offersExtraCredit")
	setBool(&f.AlternativeActivityProvided, "alternativeActivityProvided")
	setBool(&f.AIAffectsOfficialGrades, "aiAffectsOfficialGrades")
	setBool(&f.ResearchSeparateFromGrades, "researchSeparateFromGrades")
	setBool(&f.CollectsIdentifiers, "collectsIdentifiers")
	setList(&f.IdentifierTypes, "identifierTypes")
	setBool(&f.CollectsEducationRecords, "collectsEducationRecords")
	setBool(&f.CollectsSensitive, "collectsSensitive")
	setBool(&f.DeidentifyBeforeAnalysis, "deidentifyBeforeAnalysis")
	set(&f.StorageLocation, "storageLocation")
	set(&f.AccessRoles, "accessRoles")
	set(&f.RetentionPeriod, "retentionPeriod")
	set(&f.ThirdPartyTools, "thirdPartyTools")
	set(&f.IRBProfileID, "irbProfileId")
	if err != nil {
		return Form{}, err
	}

	if f.RecruiterRole == "" {
		f.RecruiterRole = "undecided"
	}
	f.IncludesMinors = strings.ToLower(f.IncludesMinors)
	if f.IncludesMinors == "" {
		f.IncludesMinors = "unknown"
	}
	return f, nil
}

// Raw returns the value of an arbitrary payload key, for profile-declared
// required fields that are not part of the canonical set.
func (f Form) Raw(key string) any {
	if f.raw == nil {
		return nil
	}
	return f.raw[key]
}

// RawString coerces an arbitrary payload key to a trimmed string.
func (f Form) RawString(key string) string {
	return String(f.Raw(key))
}

// RawList coerces an arbitrary payload key to a string list.
func (f Form) RawList(key string) []string {
	return List(f.Raw(key))
}

// RawBool coerces an arbitrary payload key to a bool.
func (f Form) RawBool(key string) bool {
	return Bool(f.Raw(key))
}

// String coerces a loose JSON value to a trimmed string.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSpace(strings.TrimSuffix(fmt.Sprintf("%g", t), ".0"))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Bool coerces a loose JSON value to a bool. Strings accept the wizard's
// affirmative spellings ("1", "true", "yes", "y", "on").
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
	}
	return false
}

// List coerces a loose JSON value to a list of non-empty strings. A comma
// separated string splits on commas.
func List(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := String(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.Contains(t, ",") {
			parts := strings.Split(t, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if s := strings.TrimSpace(p); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	default:
		if s := String(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func stringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	if _, bad := v.(map[string]any); bad {
		return "", &FieldError{Field: key, Reason: "expected a string value, got an object"}
	}
	if _, bad := v.([]any); bad {
		return "", &FieldError{Field: key, Reason: "expected a string value, got a list"}
	}
	return String(v), nil
}

func listField(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	if _, bad := v.(map[string]any); bad {
		return nil, &FieldError{Field: key, Reason: "expected a list of strings, got an object"}
	}
	if arr, isArr := v.([]any); isArr {
		for _, item := range arr {
			if _, bad := item.(map[string]any); bad {
				return nil, &FieldError{Field: key, Reason: "expected string list items, got an object"}
			}
		}
	}
	return List(v), nil
}

func boolField(raw map[string]any, key string) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return false, nil
	}
	switch v.(type) {
	case map[string]any:
		return false, &FieldError{Field: key, Reason: "expected a boolean value, got an object"}
	case []any:
		return false, &FieldError{Field: key, Reason: "expected a boolean value, got a list"}
	}
	return Bool(v), nil
}
