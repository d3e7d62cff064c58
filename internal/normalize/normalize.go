// Package normalize converts raw, loosely-shaped scraped records into
// canonical activities using a declarative per-platform field mapping.
// It is pure: no storage, no side effects.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"activity_sync/internal/domain"
)

// RawRecord is one scraped record as produced by a source. Its shape is
// source-specific and opaque to the engine.
type RawRecord map[string]any

// Transform coerces a raw value into its canonical form. It receives
// the whole record for transforms that need sibling fields.
type Transform func(value any, record RawRecord) (any, error)

// FieldSpec maps one canonical field to a dotted path into the raw
// record, with an optional transform applied to the resolved value.
type FieldSpec struct {
	Path      string
	Transform Transform
}

// Mapping is the declarative extraction table: canonical field name to
// field spec.
type Mapping map[string]FieldSpec

// Path builds a spec with no transform.
func Path(p string) FieldSpec { return FieldSpec{Path: p} }

// PathWith builds a spec with a transform.
func PathWith(p string, t Transform) FieldSpec { return FieldSpec{Path: p, Transform: t} }

// Canonical field names used as mapping targets.
const (
	FieldExternalID             = "externalId"
	FieldName                   = "name"
	FieldCategory               = "category"
	FieldSubcategory            = "subcategory"
	FieldSchedule               = "schedule"
	FieldDescription            = "description"
	FieldStartDate              = "startDate"
	FieldEndDate                = "endDate"
	FieldStartTime              = "startTime"
	FieldEndTime                = "endTime"
	FieldDaysOfWeek             = "daysOfWeek"
	FieldAgeMin                 = "ageMin"
	FieldAgeMax                 = "ageMax"
	FieldCost                   = "cost"
	FieldCostIncludesTax        = "costIncludesTax"
	FieldTaxAmount              = "taxAmount"
	FieldSpotsAvailable         = "spotsAvailable"
	FieldTotalSpots             = "totalSpots"
	FieldRegistrationURL        = "registrationUrl"
	FieldRegistrationStatus     = "registrationStatus"
	FieldRegistrationButtonText = "registrationButtonText"
	FieldLocationName           = "locationName"
	FieldLocationAddress        = "locationAddress"
	FieldLocationCity           = "locationCity"
	FieldLocationProvince       = "locationProvince"
	FieldLocationFacility       = "locationFacility"
	FieldSessions               = "sessions"
	FieldPrerequisites          = "prerequisites"
)

// ValidationError marks a record that failed required-field validation.
// Such records are dropped from the batch, not fatal to it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q %s", e.Field, e.Reason)
}

// Resolve walks a dotted path into the record. A missing segment yields
// nil, never an error.
func Resolve(record RawRecord, path string) any {
	var current any = map[string]any(record)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// Apply resolves every mapping entry against the record. A transform
// error leaves that field unset rather than failing the record.
func Apply(record RawRecord, mapping Mapping) map[string]any {
	fields := make(map[string]any, len(mapping))
	for name, spec := range mapping {
		value := Resolve(record, spec.Path)
		if value == nil {
			continue
		}
		if spec.Transform != nil {
			transformed, err := spec.Transform(value, record)
			if err != nil || transformed == nil {
				continue
			}
			value = transformed
		}
		fields[name] = value
	}
	return fields
}

// Normalize maps a raw record into a canonical activity and validates
// required fields. It returns a *ValidationError for records that must
// be dropped.
func Normalize(record RawRecord, mapping Mapping) (*domain.Activity, error) {
	fields := Apply(record, mapping)

	externalID, _ := stringField(fields, FieldExternalID)
	if strings.TrimSpace(externalID) == "" {
		return nil, &ValidationError{Field: FieldExternalID, Reason: "is required"}
	}
	name, _ := stringField(fields, FieldName)
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: FieldName, Reason: "is required"}
	}
	cost := floatField(fields, FieldCost)
	if cost < 0 {
		return nil, &ValidationError{Field: FieldCost, Reason: "must be non-negative"}
	}

	activity := &domain.Activity{
		ExternalID:             strings.TrimSpace(externalID),
		Name:                   strings.TrimSpace(name),
		Category:               stringOrEmpty(fields, FieldCategory),
		Subcategory:            stringPtrField(fields, FieldSubcategory),
		Schedule:               stringPtrField(fields, FieldSchedule),
		Description:            stringPtrField(fields, FieldDescription),
		StartDate:              timePtrField(fields, FieldStartDate),
		EndDate:                timePtrField(fields, FieldEndDate),
		StartTime:              stringPtrField(fields, FieldStartTime),
		EndTime:                stringPtrField(fields, FieldEndTime),
		DaysOfWeek:             stringSliceField(fields, FieldDaysOfWeek),
		AgeMin:                 intPtrField(fields, FieldAgeMin),
		AgeMax:                 intPtrField(fields, FieldAgeMax),
		Cost:                   cost,
		CostIncludesTax:        boolField(fields, FieldCostIncludesTax),
		TaxAmount:              floatPtrField(fields, FieldTaxAmount),
		SpotsAvailable:         intPtrField(fields, FieldSpotsAvailable),
		TotalSpots:             intPtrField(fields, FieldTotalSpots),
		RegistrationURL:        stringPtrField(fields, FieldRegistrationURL),
		RegistrationStatus:     stringPtrField(fields, FieldRegistrationStatus),
		RegistrationButtonText: stringPtrField(fields, FieldRegistrationButtonText),
		Sessions:               sessionsField(fields),
		Prerequisites:          prerequisitesField(fields),
	}

	if venueName := stringOrEmpty(fields, FieldLocationName); venueName != "" {
		activity.Venue = &domain.Location{
			Name:     venueName,
			Address:  stringOrEmpty(fields, FieldLocationAddress),
			City:     stringOrEmpty(fields, FieldLocationCity),
			Province: stringOrEmpty(fields, FieldLocationProvince),
			Facility: stringPtrField(fields, FieldLocationFacility),
		}
	}

	if raw, err := json.Marshal(record); err == nil {
		activity.RawData = raw
	}

	return activity, nil
}

func sessionsField(fields map[string]any) []domain.Session {
	items, ok := fields[FieldSessions].([]any)
	if !ok {
		return nil
	}
	sessions := make([]domain.Session, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sessions = append(sessions, domain.Session{
			SessionNumber: i + 1,
			Date:          timePtrField(m, "date"),
			StartTime:     stringPtrField(m, "startTime"),
			EndTime:       stringPtrField(m, "endTime"),
			Location:      stringPtrField(m, "location"),
			Instructor:    stringPtrField(m, "instructor"),
			Notes:         stringPtrField(m, "notes"),
		})
	}
	return sessions
}

func prerequisitesField(fields map[string]any) []domain.Prerequisite {
	items, ok := fields[FieldPrerequisites].([]any)
	if !ok {
		return nil
	}
	prereqs := make([]domain.Prerequisite, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := stringField(m, "name")
		if strings.TrimSpace(name) == "" {
			continue
		}
		required := true
		if v, present := m["isRequired"]; present {
			if b, ok := toBool(v); ok {
				required = b
			}
		}
		prereqs = append(prereqs, domain.Prerequisite{
			Name:        strings.TrimSpace(name),
			Description: stringPtrField(m, "description"),
			URL:         stringPtrField(m, "url"),
			CourseID:    stringPtrField(m, "courseId"),
			IsRequired:  required,
		})
	}
	return prereqs
}

func stringField(fields map[string]any, name string) (string, bool) {
	return toString(fields[name])
}

func stringOrEmpty(fields map[string]any, name string) string {
	s, _ := toString(fields[name])
	return strings.TrimSpace(s)
}

func stringPtrField(fields map[string]any, name string) *string {
	s, ok := toString(fields[name])
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func floatField(fields map[string]any, name string) float64 {
	f, _ := toFloat(fields[name])
	return f
}

func floatPtrField(fields map[string]any, name string) *float64 {
	f, ok := toFloat(fields[name])
	if !ok {
		return nil
	}
	return &f
}

func intPtrField(fields map[string]any, name string) *int {
	f, ok := toFloat(fields[name])
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func boolField(fields map[string]any, name string) bool {
	b, _ := toBool(fields[name])
	return b
}

func timePtrField(fields map[string]any, name string) *time.Time {
	switch v := fields[name].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		if t, ok := ParseDateTime(v); ok {
			return &t
		}
	}
	return nil
}

func stringSliceField(fields map[string]any, name string) []string {
	switch v := fields[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := toString(item); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
