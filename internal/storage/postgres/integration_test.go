//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"activity_sync/internal/domain"
	"activity_sync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	providerID int64
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_providers_locations.up.sql"),
			filepath.Join(migrationsPath, "002_create_activities.up.sql"),
			filepath.Join(migrationsPath, "003_create_scrape_jobs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM activity_history")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM activity_prerequisites")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM activity_sessions")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM scrape_jobs")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM activities")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM locations")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM providers")

	err := s.db.QueryRowxContext(s.ctx,
		`INSERT INTO providers (name, platform) VALUES ('Test Parks', 'perfectmind') RETURNING id`,
	).Scan(&s.providerID)
	s.Require().NoError(err)
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) newActivity(externalID string) *domain.Activity {
	return &domain.Activity{
		ProviderID: s.providerID,
		ExternalID: externalID,
		Name:       "Swim 101",
		Category:   "Aquatics",
		Cost:       50,
		DaysOfWeek: []string{"Mon", "Wed"},
	}
}

func (s *PostgresIntegrationSuite) TestActivityStore_Upsert_Insert() {
	store := NewActivityStore(s.db)

	id, err := store.Upsert(s.ctx, s.newActivity("C1"))
	s.NoError(err)
	s.Greater(id, int64(0))

	var count int
	err = s.db.GetContext(s.ctx, &count,
		"SELECT COUNT(*) FROM activities WHERE provider_id = $1 AND external_id = $2", s.providerID, "C1")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestActivityStore_Upsert_SameKeyKeepsRow() {
	store := NewActivityStore(s.db)

	id1, err := store.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	updated := s.newActivity("C1")
	updated.Name = "Swim 201"
	updated.Cost = 60
	updated.SpotsAvailable = utils.Ptr(4)
	id2, err := store.Upsert(s.ctx, updated)
	s.Require().NoError(err)
	s.Equal(id1, id2)

	var got struct {
		Name           string  `db:"name"`
		Cost           float64 `db:"cost"`
		SpotsAvailable *int    `db:"spots_available"`
	}
	err = s.db.GetContext(s.ctx, &got,
		"SELECT name, cost, spots_available FROM activities WHERE id = $1", id1)
	s.NoError(err)
	s.Equal("Swim 201", got.Name)
	s.Equal(60.0, got.Cost)
	s.Require().NotNil(got.SpotsAvailable)
	s.Equal(4, *got.SpotsAvailable)
}

func (s *PostgresIntegrationSuite) TestActivityStore_Upsert_ReactivatesTombstone() {
	store := NewActivityStore(s.db)

	id, err := store.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	_, err = s.db.ExecContext(s.ctx, "UPDATE activities SET is_active = FALSE WHERE id = $1", id)
	s.Require().NoError(err)

	_, err = store.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	var active bool
	err = s.db.GetContext(s.ctx, &active, "SELECT is_active FROM activities WHERE id = $1", id)
	s.NoError(err)
	s.True(active)
}

func (s *PostgresIntegrationSuite) TestActivityStore_SnapshotByProvider() {
	store := NewActivityStore(s.db)

	activity := s.newActivity("C1")
	activity.Schedule = utils.Ptr("Mon 6pm")
	activity.SpotsAvailable = utils.Ptr(10)
	id, err := store.Upsert(s.ctx, activity)
	s.Require().NoError(err)

	snapshots, err := store.SnapshotByProvider(s.ctx, s.providerID)
	s.NoError(err)
	s.Require().Len(snapshots, 1)

	snapshot := snapshots["C1"]
	s.Equal(id, snapshot.ID)
	s.Equal(50.0, snapshot.Cost)
	s.Require().NotNil(snapshot.Schedule)
	s.Equal("Mon 6pm", *snapshot.Schedule)
	s.Require().NotNil(snapshot.SpotsAvailable)
	s.Equal(10, *snapshot.SpotsAvailable)
	s.True(snapshot.IsActive)
}

func (s *PostgresIntegrationSuite) TestActivityStore_DeactivateMissing() {
	store := NewActivityStore(s.db)

	_, err := store.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)
	_, err = store.Upsert(s.ctx, s.newActivity("C2"))
	s.Require().NoError(err)

	deactivated, err := store.DeactivateMissing(s.ctx, s.providerID, []string{"C2"})
	s.NoError(err)
	s.Equal([]string{"C1"}, deactivated)

	var active bool
	err = s.db.GetContext(s.ctx, &active,
		"SELECT is_active FROM activities WHERE provider_id = $1 AND external_id = 'C1'", s.providerID)
	s.NoError(err)
	s.False(active)

	// Already inactive rows are not reported again.
	deactivated, err = store.DeactivateMissing(s.ctx, s.providerID, []string{"C2"})
	s.NoError(err)
	s.Empty(deactivated)
}

func (s *PostgresIntegrationSuite) TestActivityStore_DeactivateMissing_EmptyBatch() {
	store := NewActivityStore(s.db)

	_, err := store.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	deactivated, err := store.DeactivateMissing(s.ctx, s.providerID, []string{})
	s.NoError(err)
	s.Equal([]string{"C1"}, deactivated)
}

func (s *PostgresIntegrationSuite) TestSessionStore_ReplaceForActivity() {
	activities := NewActivityStore(s.db)
	sessions := NewSessionStore(s.db)

	activityID, err := activities.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	first := []domain.Session{
		{SessionNumber: 1, StartTime: utils.Ptr("18:00"), Instructor: utils.Ptr("J. Park")},
		{SessionNumber: 2, StartTime: utils.Ptr("18:00")},
		{SessionNumber: 3, StartTime: utils.Ptr("18:00")},
	}
	s.Require().NoError(sessions.ReplaceForActivity(s.ctx, activityID, first))

	second := []domain.Session{
		{SessionNumber: 7, StartTime: utils.Ptr("19:00")},
		{SessionNumber: 9, StartTime: utils.Ptr("19:00")},
	}
	s.Require().NoError(sessions.ReplaceForActivity(s.ctx, activityID, second))

	got, err := sessions.GetByActivityID(s.ctx, activityID)
	s.NoError(err)
	s.Require().Len(got, 2)
	// Numbers are reassigned on replace, whatever the input carried.
	s.Equal(1, got[0].SessionNumber)
	s.Equal(2, got[1].SessionNumber)
	s.Equal("19:00", *got[0].StartTime)
}

func (s *PostgresIntegrationSuite) TestPrerequisiteStore_ReplaceForActivity() {
	activities := NewActivityStore(s.db)
	prereqs := NewPrerequisiteStore(s.db)

	activityID, err := activities.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	s.Require().NoError(prereqs.ReplaceForActivity(s.ctx, activityID, []domain.Prerequisite{
		{Name: "Swim 100", IsRequired: true},
		{Name: "Parent Orientation", IsRequired: false},
	}))
	s.Require().NoError(prereqs.ReplaceForActivity(s.ctx, activityID, []domain.Prerequisite{
		{Name: "Swim 100", IsRequired: true, CourseID: utils.Ptr("C0")},
	}))

	got, err := prereqs.GetByActivityID(s.ctx, activityID)
	s.NoError(err)
	s.Require().Len(got, 1)
	s.Equal("Swim 100", got[0].Name)
	s.True(got[0].IsRequired)
	s.Require().NotNil(got[0].CourseID)
	s.Equal("C0", *got[0].CourseID)
}

func (s *PostgresIntegrationSuite) TestHistoryStore_RecordAndRead() {
	activities := NewActivityStore(s.db)
	history := NewHistoryStore(s.db)

	activityID, err := activities.Upsert(s.ctx, s.newActivity("C1"))
	s.Require().NoError(err)

	changes := []domain.FieldChange{
		{Field: "cost", OldValue: utils.Ptr("50"), NewValue: utils.Ptr("60")},
		{Field: "spotsAvailable", OldValue: nil, NewValue: utils.Ptr("4")},
	}
	s.Require().NoError(history.Record(s.ctx, activityID, changes))
	s.Require().NoError(history.Record(s.ctx, activityID, []domain.FieldChange{
		{Field: "cost", OldValue: utils.Ptr("60"), NewValue: utils.Ptr("65")},
	}))

	entries, err := history.GetByActivityID(s.ctx, activityID)
	s.NoError(err)
	s.Len(entries, 3)
	s.Equal("cost", entries[0].FieldName)
	s.Nil(entries[1].OldValue)
	s.Require().NotNil(entries[1].NewValue)
	s.Equal("4", *entries[1].NewValue)
}

func (s *PostgresIntegrationSuite) TestLocationStore_UpsertDedupesByNameAddress() {
	store := NewLocationStore(s.db)

	id1, err := store.Upsert(s.ctx, &domain.Location{
		Name:    "Hillcrest Centre",
		Address: "4575 Clancy Loranger Way",
		City:    "Vancouver",
	})
	s.Require().NoError(err)

	id2, err := store.Upsert(s.ctx, &domain.Location{
		Name:     "Hillcrest Centre",
		Address:  "4575 Clancy Loranger Way",
		City:     "Somewhere Else",
		Facility: utils.Ptr("Pool 2"),
	})
	s.Require().NoError(err)
	s.Equal(id1, id2)

	var got struct {
		City     string  `db:"city"`
		Facility *string `db:"facility"`
	}
	err = s.db.GetContext(s.ctx, &got, "SELECT city, facility FROM locations WHERE id = $1", id1)
	s.NoError(err)
	// Only the facility is refreshed on conflict.
	s.Equal("Vancouver", got.City)
	s.Require().NotNil(got.Facility)
	s.Equal("Pool 2", *got.Facility)
}

func (s *PostgresIntegrationSuite) TestLocationStore_NilFacilityKeepsExisting() {
	store := NewLocationStore(s.db)

	_, err := store.Upsert(s.ctx, &domain.Location{
		Name:     "Hillcrest Centre",
		Address:  "4575 Clancy Loranger Way",
		Facility: utils.Ptr("Pool 1"),
	})
	s.Require().NoError(err)

	id, err := store.Upsert(s.ctx, &domain.Location{
		Name:    "Hillcrest Centre",
		Address: "4575 Clancy Loranger Way",
	})
	s.Require().NoError(err)

	var facility *string
	err = s.db.GetContext(s.ctx, &facility, "SELECT facility FROM locations WHERE id = $1", id)
	s.NoError(err)
	s.Require().NotNil(facility)
	s.Equal("Pool 1", *facility)
}

func (s *PostgresIntegrationSuite) TestJobStore_Lifecycle() {
	store := NewJobStore(s.db)

	job, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	s.Equal(domain.JobPending, job.Status)

	s.Require().NoError(store.Start(s.ctx, job.ID))

	metrics := domain.JobMetrics{Found: 10, Created: 3, Updated: 6, Removed: 1}
	s.Require().NoError(store.Complete(s.ctx, job.ID, metrics))

	got, err := store.Get(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(domain.JobCompleted, got.Status)
	s.NotNil(got.StartedAt)
	s.NotNil(got.CompletedAt)
	s.Equal(10, got.Found)
	s.Equal(3, got.Created)
	s.Equal(6, got.Updated)
	s.Equal(1, got.Removed)
}

func (s *PostgresIntegrationSuite) TestJobStore_InvalidTransitions() {
	store := NewJobStore(s.db)

	job, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)

	// pending cannot complete or fail without running first.
	err = store.Complete(s.ctx, job.ID, domain.JobMetrics{})
	s.ErrorIs(err, domain.ErrInvalidTransition)
	err = store.Fail(s.ctx, job.ID, "boom", nil)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	s.Require().NoError(store.Start(s.ctx, job.ID))
	s.Require().NoError(store.Complete(s.ctx, job.ID, domain.JobMetrics{}))

	// Terminal states reject everything.
	err = store.Start(s.ctx, job.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	err = store.Complete(s.ctx, job.ID, domain.JobMetrics{})
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *PostgresIntegrationSuite) TestJobStore_Fail() {
	store := NewJobStore(s.db)

	job, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	s.Require().NoError(store.Start(s.ctx, job.ID))
	s.Require().NoError(store.Fail(s.ctx, job.ID, "fetch records: 503", []byte(`{"error":"503"}`)))

	got, err := store.Get(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(domain.JobFailed, got.Status)
	s.Require().NotNil(got.ErrorMessage)
	s.Equal("fetch records: 503", *got.ErrorMessage)
	s.JSONEq(`{"error":"503"}`, string(got.ErrorDetails))
}

func (s *PostgresIntegrationSuite) TestJobStore_CancelStale() {
	store := NewJobStore(s.db)

	stale, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	s.Require().NoError(store.Start(s.ctx, stale.ID))
	_, err = s.db.ExecContext(s.ctx,
		"UPDATE scrape_jobs SET started_at = NOW() - INTERVAL '2 hours' WHERE id = $1", stale.ID)
	s.Require().NoError(err)

	fresh, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	s.Require().NoError(store.Start(s.ctx, fresh.ID))

	cancelled, err := store.CancelStale(s.ctx, time.Now().Add(-time.Hour), "scrape job timed out")
	s.NoError(err)
	s.Equal(int64(1), cancelled)

	got, err := store.Get(s.ctx, stale.ID)
	s.NoError(err)
	s.Equal(domain.JobCancelled, got.Status)
	s.Require().NotNil(got.ErrorMessage)
	s.Equal("scrape job timed out", *got.ErrorMessage)

	got, err = store.Get(s.ctx, fresh.ID)
	s.NoError(err)
	s.Equal(domain.JobRunning, got.Status)
}

func (s *PostgresIntegrationSuite) TestJobStore_CancelStale_SweepsOrphanedPending() {
	store := NewJobStore(s.db)

	// A pending row that never started, as left behind by a crash
	// between job creation and start. It blocks its provider until
	// swept.
	orphan, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	_, err = s.db.ExecContext(s.ctx,
		"UPDATE scrape_jobs SET created_at = NOW() - INTERVAL '2 hours' WHERE id = $1", orphan.ID)
	s.Require().NoError(err)

	fresh, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)

	blocked, err := store.HasRunning(s.ctx, s.providerID)
	s.NoError(err)
	s.True(blocked)

	cancelled, err := store.CancelStale(s.ctx, time.Now().Add(-time.Hour), "scrape job timed out")
	s.NoError(err)
	s.Equal(int64(1), cancelled)

	got, err := store.Get(s.ctx, orphan.ID)
	s.NoError(err)
	s.Equal(domain.JobCancelled, got.Status)

	got, err = store.Get(s.ctx, fresh.ID)
	s.NoError(err)
	s.Equal(domain.JobPending, got.Status)
}

func (s *PostgresIntegrationSuite) TestJobStore_LastCompletedAt() {
	store := NewJobStore(s.db)

	last, err := store.LastCompletedAt(s.ctx, s.providerID)
	s.NoError(err)
	s.Nil(last)

	job, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)
	s.Require().NoError(store.Start(s.ctx, job.ID))
	s.Require().NoError(store.Complete(s.ctx, job.ID, domain.JobMetrics{}))

	last, err = store.LastCompletedAt(s.ctx, s.providerID)
	s.NoError(err)
	s.Require().NotNil(last)
	s.WithinDuration(time.Now(), *last, 5*time.Second)
}

func (s *PostgresIntegrationSuite) TestJobStore_HasRunning() {
	store := NewJobStore(s.db)

	running, err := store.HasRunning(s.ctx, s.providerID)
	s.NoError(err)
	s.False(running)

	// A pending job already blocks the provider.
	job, err := store.Create(s.ctx, s.providerID)
	s.Require().NoError(err)

	running, err = store.HasRunning(s.ctx, s.providerID)
	s.NoError(err)
	s.True(running)

	s.Require().NoError(store.Start(s.ctx, job.ID))
	s.Require().NoError(store.Complete(s.ctx, job.ID, domain.JobMetrics{}))

	running, err = store.HasRunning(s.ctx, s.providerID)
	s.NoError(err)
	s.False(running)
}

func (s *PostgresIntegrationSuite) TestProviderStore_ListActive() {
	store := NewProviderStore(s.db)

	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO providers (name, platform, is_active) VALUES ('Dormant', 'perfectmind', FALSE)")
	s.Require().NoError(err)

	providers, err := store.ListActive(s.ctx)
	s.NoError(err)
	s.Require().Len(providers, 1)
	s.Equal("Test Parks", providers[0].Name)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_RollbackOnError() {
	tm := NewTransactionManager(s.db)
	activities := NewActivityStore(s.db)

	err := tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if _, err := activities.Upsert(txCtx, s.newActivity("C1")); err != nil {
			return err
		}
		return errors.New("forced rollback")
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM activities")
	s.NoError(err)
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestTransactionManager_SavepointIsolatesFailure() {
	tm := NewTransactionManager(s.db)
	activities := NewActivityStore(s.db)

	err := tm.WithTransaction(s.ctx, func(txCtx context.Context) error {
		spErr := tm.WithSavepoint(txCtx, func(spCtx context.Context) error {
			// A doomed record: unknown provider violates the FK.
			bad := s.newActivity("BAD")
			bad.ProviderID = -1
			_, err := activities.Upsert(spCtx, bad)
			return err
		})
		s.Error(spErr)

		// The transaction is still usable after the rollback to
		// the savepoint.
		return tm.WithSavepoint(txCtx, func(spCtx context.Context) error {
			_, err := activities.Upsert(spCtx, s.newActivity("C1"))
			return err
		})
	})
	s.NoError(err)

	var ids []string
	err = s.db.SelectContext(s.ctx, &ids, "SELECT external_id FROM activities ORDER BY external_id")
	s.NoError(err)
	s.Equal([]string{"C1"}, ids)
}
