package perfectmind

import (
	"fmt"

	"activity_sync/internal/normalize"
)

// ActivityMapping extracts canonical activity fields from the raw
// PerfectMind catalogue record shape.
var ActivityMapping = normalize.Mapping{
	normalize.FieldExternalID:             normalize.Path("courseId"),
	normalize.FieldName:                   normalize.Path("eventName"),
	normalize.FieldCategory:               normalize.Path("category.name"),
	normalize.FieldSubcategory:            normalize.Path("category.subcategory"),
	normalize.FieldSchedule:               normalize.Path("details.schedule"),
	normalize.FieldDescription:            normalize.Path("details.description"),
	normalize.FieldStartDate:              normalize.PathWith("dates.start", normalize.DateTime),
	normalize.FieldEndDate:                normalize.PathWith("dates.end", normalize.DateTime),
	normalize.FieldStartTime:              normalize.Path("times.start"),
	normalize.FieldEndTime:                normalize.Path("times.end"),
	normalize.FieldDaysOfWeek:             normalize.PathWith("daysOfWeek", normalize.Days),
	normalize.FieldAgeMin:                 normalize.PathWith("ageRestrictions.min", normalize.Integer),
	normalize.FieldAgeMax:                 normalize.PathWith("ageRestrictions.max", normalize.Integer),
	normalize.FieldCost:                   normalize.PathWith("price.amount", normalize.Currency),
	normalize.FieldCostIncludesTax:        normalize.Path("price.includesTax"),
	normalize.FieldTaxAmount:              normalize.PathWith("price.tax", normalize.Currency),
	normalize.FieldSpotsAvailable:         normalize.PathWith("openings.available", normalize.Integer),
	normalize.FieldTotalSpots:             normalize.PathWith("openings.total", normalize.Integer),
	normalize.FieldRegistrationURL:        normalize.Path("registration.url"),
	normalize.FieldRegistrationStatus:     normalize.Path("registration.status"),
	normalize.FieldRegistrationButtonText: normalize.Path("registration.buttonText"),
	normalize.FieldLocationName:           normalize.Path("facility.name"),
	normalize.FieldLocationAddress:        normalize.Path("facility.address"),
	normalize.FieldLocationCity:           normalize.Path("facility.city"),
	normalize.FieldLocationProvince:       normalize.Path("facility.province"),
	normalize.FieldLocationFacility:       normalize.Path("facility.room"),
	normalize.FieldSessions:               normalize.PathWith("sessions", sessionList),
	normalize.FieldPrerequisites:          normalize.PathWith("prerequisites", prerequisiteList),
}

// sessionList renames PerfectMind session keys to the canonical ones
// the normalizer expects.
func sessionList(value any, _ normalize.RawRecord) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("sessions: unsupported type %T", value)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"date":       m["date"],
			"startTime":  m["start"],
			"endTime":    m["end"],
			"location":   m["room"],
			"instructor": m["instructor"],
			"notes":      m["note"],
		})
	}
	return out, nil
}

func prerequisiteList(value any, _ normalize.RawRecord) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("prerequisites: unsupported type %T", value)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"name":        m["title"],
			"description": m["details"],
			"url":         m["link"],
			"courseId":    m["courseId"],
			"isRequired":  m["required"],
		})
	}
	return out, nil
}
