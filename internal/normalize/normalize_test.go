package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMapping() Mapping {
	return Mapping{
		FieldExternalID:      Path("courseId"),
		FieldName:            Path("eventName"),
		FieldCategory:        Path("category.name"),
		FieldSchedule:        Path("details.schedule"),
		FieldStartDate:       PathWith("dates.start", DateTime),
		FieldDaysOfWeek:      PathWith("daysOfWeek", Days),
		FieldCost:            PathWith("price.amount", Currency),
		FieldSpotsAvailable:  PathWith("openings.available", Integer),
		FieldLocationName:    Path("facility.name"),
		FieldLocationAddress: Path("facility.address"),
		FieldSessions:        Path("sessions"),
		FieldPrerequisites:   Path("prerequisites"),
	}
}

func TestResolve(t *testing.T) {
	record := RawRecord{
		"courseId": "C1",
		"category": map[string]any{"name": "Aquatics"},
	}

	assert.Equal(t, "C1", Resolve(record, "courseId"))
	assert.Equal(t, "Aquatics", Resolve(record, "category.name"))
	assert.Nil(t, Resolve(record, "category.missing"))
	assert.Nil(t, Resolve(record, "nope"))
	assert.Nil(t, Resolve(record, "courseId.deeper"))
}

func TestApply_TransformErrorLeavesFieldUnset(t *testing.T) {
	record := RawRecord{
		"courseId": "C1",
		"price":    map[string]any{"amount": "not a price"},
	}

	fields := Apply(record, testMapping())

	assert.Equal(t, "C1", fields[FieldExternalID])
	_, present := fields[FieldCost]
	assert.False(t, present)
}

func TestNormalize_FullRecord(t *testing.T) {
	record := RawRecord{
		"courseId":  "C1",
		"eventName": "  Swim 101  ",
		"category":  map[string]any{"name": "Aquatics"},
		"details":   map[string]any{"schedule": "Mon/Wed 6pm"},
		"dates":     map[string]any{"start": "2026-09-08"},
		"daysOfWeek": []any{
			"Monday", "Wednesday",
		},
		"price":    map[string]any{"amount": "$52.50"},
		"openings": map[string]any{"available": float64(12)},
		"facility": map[string]any{
			"name":    "Hillcrest Centre",
			"address": "4575 Clancy Loranger Way",
		},
		"sessions": []any{
			map[string]any{"date": "2026-09-08", "startTime": "18:00", "instructor": "J. Park"},
			map[string]any{"date": "2026-09-15", "startTime": "18:00"},
		},
		"prerequisites": []any{
			map[string]any{"name": "Swim 100", "isRequired": true},
		},
	}

	activity, err := Normalize(record, testMapping())
	require.NoError(t, err)

	assert.Equal(t, "C1", activity.ExternalID)
	assert.Equal(t, "Swim 101", activity.Name)
	assert.Equal(t, "Aquatics", activity.Category)
	require.NotNil(t, activity.Schedule)
	assert.Equal(t, "Mon/Wed 6pm", *activity.Schedule)
	require.NotNil(t, activity.StartDate)
	assert.Equal(t, time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC), *activity.StartDate)
	assert.Equal(t, []string{"Mon", "Wed"}, activity.DaysOfWeek)
	assert.Equal(t, 52.50, activity.Cost)
	require.NotNil(t, activity.SpotsAvailable)
	assert.Equal(t, 12, *activity.SpotsAvailable)

	require.NotNil(t, activity.Venue)
	assert.Equal(t, "Hillcrest Centre", activity.Venue.Name)
	assert.Equal(t, "4575 Clancy Loranger Way", activity.Venue.Address)

	require.Len(t, activity.Sessions, 2)
	assert.Equal(t, 1, activity.Sessions[0].SessionNumber)
	assert.Equal(t, 2, activity.Sessions[1].SessionNumber)
	require.NotNil(t, activity.Sessions[0].Instructor)
	assert.Equal(t, "J. Park", *activity.Sessions[0].Instructor)

	require.Len(t, activity.Prerequisites, 1)
	assert.Equal(t, "Swim 100", activity.Prerequisites[0].Name)
	assert.True(t, activity.Prerequisites[0].IsRequired)

	assert.NotEmpty(t, activity.RawData)
}

func TestNormalize_MissingExternalID(t *testing.T) {
	record := RawRecord{"eventName": "Orphan"}

	_, err := Normalize(record, testMapping())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, FieldExternalID, vErr.Field)
}

func TestNormalize_MissingName(t *testing.T) {
	record := RawRecord{"courseId": "C1", "eventName": "   "}

	_, err := Normalize(record, testMapping())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, FieldName, vErr.Field)
}

func TestNormalize_NegativeCost(t *testing.T) {
	record := RawRecord{
		"courseId":  "C1",
		"eventName": "Swim 101",
		"price":     map[string]any{"amount": -5.0},
	}

	_, err := Normalize(record, testMapping())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, FieldCost, vErr.Field)
}

func TestNormalize_MissingCostDefaultsToZero(t *testing.T) {
	record := RawRecord{"courseId": "C1", "eventName": "Story Time"}

	activity, err := Normalize(record, testMapping())

	require.NoError(t, err)
	assert.Equal(t, 0.0, activity.Cost)
}

func TestNormalize_NoVenueWithoutLocationName(t *testing.T) {
	record := RawRecord{
		"courseId":  "C1",
		"eventName": "Swim 101",
		"facility":  map[string]any{"address": "123 Main St"},
	}

	activity, err := Normalize(record, testMapping())

	require.NoError(t, err)
	assert.Nil(t, activity.Venue)
}

func TestNormalize_PrerequisiteDefaultsToRequired(t *testing.T) {
	record := RawRecord{
		"courseId":  "C1",
		"eventName": "Swim 201",
		"prerequisites": []any{
			map[string]any{"name": "Swim 101"},
			map[string]any{"name": "Swim 102", "isRequired": false},
			map[string]any{"description": "no name, dropped"},
		},
	}

	activity, err := Normalize(record, testMapping())

	require.NoError(t, err)
	require.Len(t, activity.Prerequisites, 2)
	assert.True(t, activity.Prerequisites[0].IsRequired)
	assert.False(t, activity.Prerequisites[1].IsRequired)
}
