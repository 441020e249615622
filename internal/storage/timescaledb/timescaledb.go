// Package timescaledb keeps users' projects and runs in TimescaleDB (or plain
// PostgreSQL) through GORM.
package timescaledb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/energymonitor/internal/energy"
	"github.com/chrissnell/energymonitor/internal/log"
	"github.com/chrissnell/energymonitor/internal/storage"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Project is a row of energy_projects.
type Project struct {
	ID        uint      `gorm:"primaryKey"`
	UserName  string    `gorm:"column:user_name;not null;uniqueIndex:idx_user_project"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:idx_user_project"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "energy_projects"
}

// RunRow is a row of energy_runs. Numeric columns are nullable, and a NULL
// reads back as NaN.
type RunRow struct {
	ID            uint            `gorm:"primaryKey"`
	ProjectID     uint            `gorm:"column:project_id;not null;uniqueIndex:idx_project_run"`
	Name          string          `gorm:"column:name;not null;uniqueIndex:idx_project_run"`
	EnergyKWh     sql.NullFloat64 `gorm:"column:energy_kwh"`
	AvgPowerWatts sql.NullFloat64 `gorm:"column:avg_power_watts"`
	Duration      sql.NullFloat64 `gorm:"column:duration"`
	Timestamp     sql.NullTime    `gorm:"column:timestamp"`
}

// TableName specifies the table name for RunRow
func (RunRow) TableName() string {
	return "energy_runs"
}

// Store is a storage.RunStore backed by TimescaleDB.
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

var _ storage.RunStore = (*Store)(nil)

// New connects to the database and makes sure the tables exist.
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = log.Named("timescaledb")
	}
	logger.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: gormlog(logger.Desugar())})
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}

	s := NewWithDB(db, logger)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("TimescaleDB connection successful")
	return s, nil
}

// NewWithDB wraps an already opened GORM handle.
func NewWithDB(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = log.Named("timescaledb")
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates the project and run tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Project{}, &RunRow{}); err != nil {
		return fmt.Errorf("could not create energy tables: %w", err)
	}
	return nil
}

// ListProjects returns the user's project names in creation order.
func (s *Store) ListProjects(ctx context.Context, user string) ([]string, error) {
	projects, err := s.projects(ctx, user)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	return names, nil
}

// GetRuns returns the runs of one project, sorted by run name.
func (s *Store) GetRuns(ctx context.Context, user, project string) ([]energy.Run, error) {
	var p Project
	err := findProject(s.db.WithContext(ctx), user, project, &p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.NotFoundf("project %q for user %q", project, user)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying project %q: %w", project, err)
	}
	return s.runs(ctx, p.ID)
}

// GetAllProjects returns every project of the user together with its runs.
func (s *Store) GetAllProjects(ctx context.Context, user string) ([]energy.ProjectRuns, error) {
	projects, err := s.projects(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]energy.ProjectRuns, 0, len(projects))
	for _, p := range projects {
		runs, err := s.runs(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, energy.ProjectRuns{Project: p.Name, Runs: runs})
	}
	return out, nil
}

// AddProject creates an empty project, reporting false if it already existed.
func (s *Store) AddProject(ctx context.Context, user, project string) (bool, error) {
	res := insertProject(s.db.WithContext(ctx), &Project{UserName: user, Name: project})
	if res.Error != nil {
		return false, fmt.Errorf("error adding project %q for %q: %w", project, user, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SaveRun stores a run, creating the project if needed. Raw field values are
// coerced the same way reads are, so a malformed number is stored as NULL.
func (s *Store) SaveRun(ctx context.Context, user, project, runName string, fields map[string]any) (string, error) {
	if _, err := s.AddProject(ctx, user, project); err != nil {
		return "", err
	}

	var p Project
	if err := findProject(s.db.WithContext(ctx), user, project, &p).Error; err != nil {
		return "", fmt.Errorf("error querying project %q: %w", project, err)
	}

	run := energy.RunFromFields(storage.RunName(runName), fields)
	row := rowFromRun(p.ID, run)

	err := upsertRun(s.db.WithContext(ctx), &row).Error
	if err != nil {
		return "", fmt.Errorf("error storing run %q: %w", run.Name, err)
	}

	s.logger.Debugf("stored run %q in project %q for %q", run.Name, project, user)
	return run.Name, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) projects(ctx context.Context, user string) ([]Project, error) {
	var projects []Project
	err := userProjects(s.db.WithContext(ctx), user, &projects).Error
	if err != nil {
		return nil, fmt.Errorf("error listing projects for %q: %w", user, err)
	}
	if len(projects) == 0 {
		return nil, storage.NotFoundf("user %q has no projects", user)
	}
	return projects, nil
}

func (s *Store) runs(ctx context.Context, projectID uint) ([]energy.Run, error) {
	var rows []RunRow
	if err := projectRuns(s.db.WithContext(ctx), projectID, &rows).Error; err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}

	runs := make([]energy.Run, len(rows))
	for i, r := range rows {
		runs[i] = runFromRow(r)
	}
	return runs, nil
}

// insertProject creates p unless the user already has a project of that
// name, in which case RowsAffected is 0.
func insertProject(tx *gorm.DB, p *Project) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
}

// upsertRun inserts row or overwrites the values of the run with the same
// name in the same project.
func upsertRun(tx *gorm.DB, row *RunRow) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"energy_kwh", "avg_power_watts", "duration", "timestamp"}),
	}).Create(row)
}

func findProject(tx *gorm.DB, user, project string, p *Project) *gorm.DB {
	return tx.Where("user_name = ? AND name = ?", user, project).First(p)
}

// userProjects lists the user's projects in creation order.
func userProjects(tx *gorm.DB, user string, projects *[]Project) *gorm.DB {
	return tx.Where("user_name = ?", user).Order("id").Find(projects)
}

func projectRuns(tx *gorm.DB, projectID uint, rows *[]RunRow) *gorm.DB {
	return tx.Where("project_id = ?", projectID).Order("name").Find(rows)
}

func runFromRow(r RunRow) energy.Run {
	run := energy.Run{
		Name:            r.Name,
		EnergyKWh:       nullToNaN(r.EnergyKWh),
		AvgPowerWatts:   nullToNaN(r.AvgPowerWatts),
		DurationSeconds: nullToNaN(r.Duration),
	}
	if r.Timestamp.Valid {
		run.Timestamp = r.Timestamp.Time.UTC()
	}
	return run
}

func rowFromRun(projectID uint, run energy.Run) RunRow {
	row := RunRow{
		ProjectID:     projectID,
		Name:          run.Name,
		EnergyKWh:     nanToNull(run.EnergyKWh),
		AvgPowerWatts: nanToNull(run.AvgPowerWatts),
		Duration:      nanToNull(run.DurationSeconds),
	}
	if !run.Timestamp.IsZero() {
		row.Timestamp = sql.NullTime{Time: run.Timestamp, Valid: true}
	}
	return row
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nanToNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func gormlog(z *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(z),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
