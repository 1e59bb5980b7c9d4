package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Station identifies one of the three scored test stations.
type Station string

const (
	// StationSitups is the one-minute sit-up station.
	StationSitups Station = "situps"
	// StationPushups is the one-minute push-up station.
	StationPushups Station = "pushups"
	// StationRun is the 2.4 km run station.
	StationRun Station = "run"
)

// Age bounds covered by the scoring tables.
const (
	MinTableAge = 16
	MaxTableAge = 60
)

var (
	// ErrTableNotFound indicates no scoring table exists for the requested age.
	ErrTableNotFound = errors.New("scoring: table not found for age")
	// ErrInvalidAge indicates the requested age is outside the table range.
	ErrInvalidAge = errors.New("scoring: age outside table range")
	// ErrMissingDatabase indicates the store was constructed without a database handle.
	ErrMissingDatabase = errors.New("scoring: database handle is required")
)

// Band maps a station threshold onto awarded points. For rep stations the
// provider supplies bands in descending threshold order; for the run station
// in ascending threshold order. The engine relies on that ordering and does
// not re-sort.
type Band struct {
	Threshold int
	Points    int
}

// MarshalJSON encodes the band as an ordered [threshold, points] pair, the
// shape scoring tables travel in over the wire and in seed files.
func (b Band) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{b.Threshold, b.Points})
}

// UnmarshalJSON decodes a [threshold, points] pair.
func (b *Band) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("scoring band must be a [threshold, points] pair: %w", err)
	}
	b.Threshold = pair[0]
	b.Points = pair[1]
	return nil
}

// Table carries the per-age bands for all three stations.
type Table struct {
	Age     int    `json:"age"`
	Situps  []Band `json:"situps_scoring"`
	Pushups []Band `json:"pushups_scoring"`
	Run     []Band `json:"run_scoring"`
}

// TableProvider supplies the scoring table for a given financial-year age.
type TableProvider interface {
	TableForAge(ctx context.Context, age int) (Table, error)
}

// TableBand is the persisted form of a single scoring band.
type TableBand struct {
	Age       int    `gorm:"column:age;primaryKey;not null"`
	Station   string `gorm:"column:station;primaryKey;size:16;not null"`
	Position  int    `gorm:"column:position;primaryKey;not null"`
	Threshold int    `gorm:"column:threshold;not null"`
	Points    int    `gorm:"column:points;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TableBand) TableName() string {
	return "scoring_bands"
}

// Store is a GORM-backed TableProvider. It also backs the scoring HTTP
// endpoint so the engine and remote callers read the same data.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store over the provided database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrMissingDatabase
	}
	return &Store{db: db}, nil
}

// TableForAge loads the three station band lists for the given age.
func (s *Store) TableForAge(ctx context.Context, age int) (Table, error) {
	if age < MinTableAge || age > MaxTableAge {
		return Table{}, fmt.Errorf("%w: %d", ErrInvalidAge, age)
	}

	var rows []TableBand
	err := s.db.WithContext(ctx).
		Where("age = ?", age).
		Order("station ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return Table{}, err
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("%w: %d", ErrTableNotFound, age)
	}

	table := Table{Age: age}
	for _, row := range rows {
		band := Band{Threshold: row.Threshold, Points: row.Points}
		switch Station(row.Station) {
		case StationSitups:
			table.Situps = append(table.Situps, band)
		case StationPushups:
			table.Pushups = append(table.Pushups, band)
		case StationRun:
			table.Run = append(table.Run, band)
		}
	}
	return table, nil
}

// ReplaceTable replaces every band stored for the table's age.
func (s *Store) ReplaceTable(ctx context.Context, table Table) error {
	if table.Age < MinTableAge || table.Age > MaxTableAge {
		return fmt.Errorf("%w: %d", ErrInvalidAge, table.Age)
	}

	rows := make([]TableBand, 0, len(table.Situps)+len(table.Pushups)+len(table.Run))
	appendBands := func(station Station, bands []Band) {
		for position, band := range bands {
			rows = append(rows, TableBand{
				Age:       table.Age,
				Station:   string(station),
				Position:  position,
				Threshold: band.Threshold,
				Points:    band.Points,
			})
		}
	}
	appendBands(StationSitups, table.Situps)
	appendBands(StationPushups, table.Pushups)
	appendBands(StationRun, table.Run)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("age = ?", table.Age).Delete(&TableBand{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
}

// CachingProvider memoizes per-age tables from an underlying provider for the
// lifetime of the wrapper. Errors are not cached, so a transient fetch
// failure retries on the next lookup.
type CachingProvider struct {
	source TableProvider
	mu     sync.RWMutex
	tables map[int]Table
}

// NewCachingProvider wraps source with a per-age cache.
func NewCachingProvider(source TableProvider) *CachingProvider {
	return &CachingProvider{
		source: source,
		tables: make(map[int]Table),
	}
}

// TableForAge returns the cached table for age, fetching it on first use.
func (p *CachingProvider) TableForAge(ctx context.Context, age int) (Table, error) {
	p.mu.RLock()
	table, ok := p.tables[age]
	p.mu.RUnlock()
	if ok {
		return table, nil
	}

	table, err := p.source.TableForAge(ctx, age)
	if err != nil {
		return Table{}, err
	}

	p.mu.Lock()
	p.tables[age] = table
	p.mu.Unlock()
	return table, nil
}
