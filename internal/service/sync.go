package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"activity_sync/internal/domain"
)

// Field names recorded in activity history.
const (
	TrackedCost         = "cost"
	TrackedSpots        = "spotsAvailable"
	TrackedSchedule     = "schedule"
	TrackedLocationName = "locationName"
)

// Reconciler merges one provider's normalized batch into storage:
// create/update keyed by (provider, external id), deactivation of
// records absent from the batch, full replacement of nested sessions
// and prerequisites, and append-only change history for tracked fields.
type Reconciler struct {
	activities ActivityStore
	sessions   SessionStore
	prereqs    PrerequisiteStore
	history    HistoryStore
	locations  LocationStore
	txManager  TransactionManager
	logger     *slog.Logger
}

func NewReconciler(
	activities ActivityStore,
	sessions SessionStore,
	prereqs PrerequisiteStore,
	history HistoryStore,
	locations LocationStore,
	txManager TransactionManager,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		activities: activities,
		sessions:   sessions,
		prereqs:    prereqs,
		history:    history,
		locations:  locations,
		txManager:  txManager,
		logger:     logger,
	}
}

// Synchronize processes the batch inside a single transaction. Each
// record is isolated in a savepoint: a failing record is rolled back on
// its own, reported in the summary, and does not disturb the rest.
// Anything escaping the per-record boundary rolls back the whole batch.
//
// Created vs updated is decided by whether the external id existed
// before this call, never by comparing field values.
func (r *Reconciler) Synchronize(ctx context.Context, providerID int64, records []domain.Activity) (*domain.SyncSummary, error) {
	startTime := time.Now()

	existing, err := r.activities.SnapshotByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load existing activities: %w", err)
	}

	r.logger.Info("starting reconciliation",
		"provider_id", providerID,
		"records", len(records),
		"existing", len(existing),
	)

	summary := &domain.SyncSummary{ProviderID: providerID, Found: len(records)}
	scrapedIDs := make([]string, 0, len(records))

	err = r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range records {
			record := &records[i]
			record.ProviderID = providerID

			if record.ExternalID == "" {
				summary.Errors = append(summary.Errors, domain.RecordError{
					Message: "missing external id",
				})
				continue
			}
			scrapedIDs = append(scrapedIDs, record.ExternalID)

			snapshot, existed := existing[record.ExternalID]
			err := r.txManager.WithSavepoint(txCtx, func(spCtx context.Context) error {
				return r.applyRecord(spCtx, record, snapshot, existed)
			})
			if err != nil {
				r.logger.Warn("record failed",
					"provider_id", providerID,
					"external_id", record.ExternalID,
					"error", err,
				)
				summary.Errors = append(summary.Errors, domain.RecordError{
					ExternalID: record.ExternalID,
					Message:    err.Error(),
				})
				continue
			}

			action := domain.ActionCreated
			if existed {
				action = domain.ActionUpdated
				summary.Updated++
			} else {
				summary.Created++
			}
			summary.Events = append(summary.Events, domain.ActivityEvent{
				Action:     action,
				ProviderID: providerID,
				ExternalID: record.ExternalID,
				Name:       record.Name,
				Timestamp:  time.Now().UTC(),
			})
		}

		deactivated, err := r.activities.DeactivateMissing(txCtx, providerID, scrapedIDs)
		if err != nil {
			return fmt.Errorf("deactivate missing: %w", err)
		}
		summary.Deactivated = len(deactivated)
		for _, externalID := range deactivated {
			summary.Events = append(summary.Events, domain.ActivityEvent{
				Action:     domain.ActionDeactivated,
				ProviderID: providerID,
				ExternalID: externalID,
				Timestamp:  time.Now().UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary.Duration = time.Since(startTime)

	r.logger.Info("reconciliation completed",
		"provider_id", providerID,
		"created", summary.Created,
		"updated", summary.Updated,
		"deactivated", summary.Deactivated,
		"errors", len(summary.Errors),
		"duration", summary.Duration,
	)

	return summary, nil
}

func (r *Reconciler) applyRecord(ctx context.Context, record *domain.Activity, snapshot domain.ActivitySnapshot, existed bool) error {
	if record.Venue != nil {
		locationID, err := r.locations.Upsert(ctx, record.Venue)
		if err != nil {
			return fmt.Errorf("resolve location: %w", err)
		}
		record.LocationID = &locationID
		venueName := record.Venue.Name
		record.LocationName = &venueName
	}

	record.SessionCount = len(record.Sessions)
	record.HasMultipleSessions = len(record.Sessions) > 1
	record.HasPrerequisites = len(record.Prerequisites) > 0

	activityID, err := r.activities.Upsert(ctx, record)
	if err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}
	record.ID = activityID

	// History is written only for activities that already existed
	// before the batch, never on first sighting.
	if existed {
		if changes := trackedChanges(snapshot, record); len(changes) > 0 {
			if err := r.history.Record(ctx, activityID, changes); err != nil {
				return fmt.Errorf("record history: %w", err)
			}
		}
	}

	if len(record.Sessions) > 0 {
		if err := r.sessions.ReplaceForActivity(ctx, activityID, record.Sessions); err != nil {
			return fmt.Errorf("replace sessions: %w", err)
		}
	}
	if len(record.Prerequisites) > 0 {
		if err := r.prereqs.ReplaceForActivity(ctx, activityID, record.Prerequisites); err != nil {
			return fmt.Errorf("replace prerequisites: %w", err)
		}
	}

	return nil
}

func trackedChanges(old domain.ActivitySnapshot, record *domain.Activity) []domain.FieldChange {
	var changes []domain.FieldChange

	if old.Cost != record.Cost {
		changes = append(changes, domain.FieldChange{
			Field:    TrackedCost,
			OldValue: floatPtrString(&old.Cost),
			NewValue: floatPtrString(&record.Cost),
		})
	}
	if !equalIntPtr(old.SpotsAvailable, record.SpotsAvailable) {
		changes = append(changes, domain.FieldChange{
			Field:    TrackedSpots,
			OldValue: intPtrString(old.SpotsAvailable),
			NewValue: intPtrString(record.SpotsAvailable),
		})
	}
	if !equalStringPtr(old.Schedule, record.Schedule) {
		changes = append(changes, domain.FieldChange{
			Field:    TrackedSchedule,
			OldValue: old.Schedule,
			NewValue: record.Schedule,
		})
	}
	if !equalStringPtr(old.LocationName, record.LocationName) {
		changes = append(changes, domain.FieldChange{
			Field:    TrackedLocationName,
			OldValue: old.LocationName,
			NewValue: record.LocationName,
		})
	}

	return changes
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrString(f *float64) *string {
	if f == nil {
		return nil
	}
	s := strconv.FormatFloat(*f, 'f', -1, 64)
	return &s
}

func intPtrString(n *int) *string {
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}
