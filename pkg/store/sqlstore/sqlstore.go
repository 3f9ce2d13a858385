// Package sqlstore is the secondary experiment store: a denormalised
// relational mirror of the primary, kept for reporting joins. It never
// mints ids, holds no lookup indices of its own beyond the unique
// (application, label) constraint, and deletes are physical.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/store"
)

// experimentRow mirrors one experiment. State is stored as its string form
// so reporting queries read naturally.
type experimentRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	ApplicationName string `gorm:"size:64;not null;uniqueIndex:uk_app_label;index"`
	Label           string `gorm:"size:64;not null;uniqueIndex:uk_app_label"`
	Description     string `gorm:"type:text"`
	State           string `gorm:"size:16;not null;index"`

	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`

	SamplingPercent float64 `gorm:"not null"`
	Rule            string  `gorm:"type:text"`

	IsPersonalizationEnabled bool
	ModelName                string `gorm:"size:128"`
	ModelVersion             string `gorm:"size:64"`

	IsRapidExperiment bool
	UserCap           int64

	CreationTime     time.Time `gorm:"not null"`
	ModificationTime time.Time `gorm:"not null"`
}

func (experimentRow) TableName() string { return "experiment_mirror" }

// Store is the gorm-backed secondary store.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the mirror table.
func Open(dsn string) (*Store, error) {
	return New(mysql.Open(dsn))
}

// New builds the store over any gorm dialector. Tests use sqlite.
func New(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mirror db: %w", err)
	}
	if err := db.AutoMigrate(&experimentRow{}); err != nil {
		return nil, fmt.Errorf("migrate mirror: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func toRow(e *experiment.Experiment) *experimentRow {
	return &experimentRow{
		ID:                       e.ID,
		ApplicationName:          e.ApplicationName,
		Label:                    e.Label,
		Description:              e.Description,
		State:                    e.State.String(),
		StartTime:                e.StartTime,
		EndTime:                  e.EndTime,
		SamplingPercent:          e.SamplingPercent,
		Rule:                     e.Rule,
		IsPersonalizationEnabled: e.IsPersonalizationEnabled,
		ModelName:                e.ModelName,
		ModelVersion:             e.ModelVersion,
		IsRapidExperiment:        e.IsRapidExperiment,
		UserCap:                  e.UserCap,
		CreationTime:             e.CreationTime,
		ModificationTime:         e.ModificationTime,
	}
}

func fromRow(r *experimentRow) (*experiment.Experiment, error) {
	state, err := experiment.ParseState(r.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSchema, err)
	}
	return &experiment.Experiment{
		ID:                       r.ID,
		ApplicationName:          r.ApplicationName,
		Label:                    r.Label,
		Description:              r.Description,
		State:                    state,
		StartTime:                r.StartTime,
		EndTime:                  r.EndTime,
		SamplingPercent:          r.SamplingPercent,
		Rule:                     r.Rule,
		IsPersonalizationEnabled: r.IsPersonalizationEnabled,
		ModelName:                r.ModelName,
		ModelVersion:             r.ModelVersion,
		IsRapidExperiment:        r.IsRapidExperiment,
		UserCap:                  r.UserCap,
		CreationTime:             r.CreationTime,
		ModificationTime:         r.ModificationTime,
	}, nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", store.ErrNotFound, op)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", store.ErrConflict, op)
	default:
		return fmt.Errorf("%w: %s: %v", store.ErrTransient, op, err)
	}
}

// CreateExperiment inserts the mirror row. The primary must have minted the
// id already.
func (s *Store) CreateExperiment(ctx context.Context, n *experiment.NewExperiment, at time.Time) (string, error) {
	if n.ID == "" {
		return "", fmt.Errorf("%w: mirror create requires a minted id", store.ErrSchema)
	}
	row := toRow(n.Experiment(at))
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", classify("create mirror row", err)
	}
	return n.ID, nil
}

// CreateIndices is a no-op: the mirror carries no lookup indices of its own.
func (s *Store) CreateIndices(_ context.Context, _ *experiment.NewExperiment) error {
	return nil
}

// GetExperiment returns the mirror row by id. DELETED rows read as absent.
func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var row experimentRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND state <> ?", id, experiment.StateDeleted.String()).
		First(&row).Error
	if err != nil {
		return nil, classify("get mirror row", err)
	}
	return fromRow(&row)
}

// GetExperimentByLabel returns the mirror row by (application, label).
func (s *Store) GetExperimentByLabel(ctx context.Context, appName, label string) (*experiment.Experiment, error) {
	var row experimentRow
	err := s.db.WithContext(ctx).
		Where("application_name = ? AND label = ? AND state <> ?",
			appName, label, experiment.StateDeleted.String()).
		First(&row).Error
	if err != nil {
		return nil, classify("get mirror row by label", err)
	}
	return fromRow(&row)
}

// GetExperiments returns all non-deleted mirror rows ordered by
// (application, label).
func (s *Store) GetExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	var rows []experimentRow
	err := s.db.WithContext(ctx).
		Where("state <> ?", experiment.StateDeleted.String()).
		Order("application_name, label").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list mirror rows", err)
	}
	return convertRows(rows)
}

// GetExperimentsByApp returns an application's non-deleted mirror rows
// ordered by label.
func (s *Store) GetExperimentsByApp(ctx context.Context, appName string) ([]*experiment.Experiment, error) {
	var rows []experimentRow
	err := s.db.WithContext(ctx).
		Where("application_name = ? AND state <> ?", appName, experiment.StateDeleted.String()).
		Order("label").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list mirror rows by app", err)
	}
	return convertRows(rows)
}

func convertRows(rows []experimentRow) ([]*experiment.Experiment, error) {
	out := make([]*experiment.Experiment, 0, len(rows))
	for i := range rows {
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateExperiment overwrites the mirror row.
func (s *Store) UpdateExperiment(ctx context.Context, e *experiment.Experiment) (*experiment.Experiment, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&experimentRow{}).Where("id = ?", e.ID).Count(&count).Error
	if err != nil {
		return nil, classify("update mirror row", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: update mirror row %s", store.ErrNotFound, e.ID)
	}
	if err := s.db.WithContext(ctx).Save(toRow(e)).Error; err != nil {
		return nil, classify("update mirror row", err)
	}
	stored := *e
	return &stored, nil
}

// DeleteExperiment physically removes the mirror row.
func (s *Store) DeleteExperiment(ctx context.Context, n *experiment.NewExperiment) error {
	if err := s.db.WithContext(ctx).Delete(&experimentRow{ID: n.ID}).Error; err != nil {
		return classify("delete mirror row", err)
	}
	return nil
}

// LogExperimentChanges is a no-op: the audit log lives on the primary.
func (s *Store) LogExperimentChanges(_ context.Context, _ string, _ []experiment.AuditInfo, _ time.Time) error {
	return nil
}

// GetApplicationsList returns the distinct application names in the mirror.
func (s *Store) GetApplicationsList(ctx context.Context) ([]string, error) {
	var apps []string
	err := s.db.WithContext(ctx).Model(&experimentRow{}).
		Where("state <> ?", experiment.StateDeleted.String()).
		Distinct("application_name").
		Order("application_name").
		Pluck("application_name", &apps).Error
	if err != nil {
		return nil, classify("list mirror applications", err)
	}
	return apps, nil
}
