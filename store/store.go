// =================================================================================
//
//			fourtrack - a multitrack composer audio engine
//
//		 Fourtrack is a headless engine for scheduling, recording and
//	  rendering multitrack projects against a shared musical clock
//
//		 Copyright (c) 2026 the fourtrack authors
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package store persists projects, takes and settings in a single SQLite
// file. Projects are stored whole as their versioned JSON document; take
// payloads live in their own table so a project load does not drag every
// recording off disk.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fourtrack/exchange"
	"fourtrack/model"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrNoActiveTake = errors.New("store: clip has no active take")
)

// calibrationKey is the settings slot holding the persisted latency
// calibration. The suffix versions the payload layout, not the schema.
const calibrationKey = "latency.v1"

type projectRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Name      string `gorm:"index"`
	Document  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (projectRow) TableName() string { return "projects" }

type takeRow struct {
	ID              string `gorm:"primaryKey;type:varchar(36)"`
	ClipID          string `gorm:"type:varchar(36);index:idx_take_clip"`
	SampleRate      int
	Channels        int
	DurationSeconds float64
	CreatedAt       time.Time
	PCM             []byte
}

func (takeRow) TableName() string { return "takes" }

type settingRow struct {
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     []byte
	UpdatedAt time.Time
}

func (settingRow) TableName() string { return "settings" }

// ProjectInfo is the listing row: enough to choose a project without
// decoding its document.
type ProjectInfo struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}

// Store wraps the SQLite database. It satisfies the engine's TakeSource so
// live playout can resolve active takes straight from disk.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at dbPath and migrates the
// schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&projectRow{}, &takeRow{}, &settingRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	slog.Debug(fmt.Sprintf("store open at %s", dbPath))

	return &Store{db: db, sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}

	return s.sqlDB.Close()
}

// SaveProject writes the project's full document, inserting or replacing by
// id. Take payloads are not part of the document; they are saved separately
// through SaveTakeImmediate.
func (s *Store) SaveProject(p *model.Project) error {
	if p.ID == "" {
		p.ID = model.NewID()
	}

	doc, err := exchange.MarshalProject(p, nil)
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", p.ID, err)
	}

	row := projectRow{ID: p.ID, Name: p.Name, Document: doc}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}

	slog.Debug(fmt.Sprintf("saved project %s '%s' (%d bytes)", p.ID, p.Name, len(doc)))

	return nil
}

func (s *Store) GetProject(id string) (*model.Project, error) {
	var row projectRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}

	p, _, err := exchange.UnmarshalProject(row.Document)
	if err != nil {
		return nil, fmt.Errorf("decoding project %s: %w", id, err)
	}

	return p, nil
}

// ListProjects returns every stored project, most recently updated first.
func (s *Store) ListProjects() ([]ProjectInfo, error) {
	var rows []projectRow
	if err := s.db.Select("id", "name", "updated_at").Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	infos := make([]ProjectInfo, 0, len(rows))
	for _, r := range rows {
		infos = append(infos, ProjectInfo{ID: r.ID, Name: r.Name, UpdatedAt: r.UpdatedAt})
	}

	return infos, nil
}

// DeleteProject removes the project document and every take belonging to its
// clips in one transaction.
func (s *Store) DeleteProject(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row projectRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: project %s", ErrNotFound, id)
			}
			return fmt.Errorf("loading project %s: %w", id, err)
		}

		p, _, err := exchange.UnmarshalProject(row.Document)
		if err != nil {
			slog.Warn(fmt.Sprintf("deleting project %s with undecodable document, takes may be orphaned: %v", id, err))
		} else if len(p.Clips) > 0 {
			clipIDs := make([]string, 0, len(p.Clips))
			for i := range p.Clips {
				clipIDs = append(clipIDs, p.Clips[i].ID)
			}
			if err := tx.Where("clip_id IN ?", clipIDs).Delete(&takeRow{}).Error; err != nil {
				return fmt.Errorf("deleting takes of project %s: %w", id, err)
			}
		}

		if err := tx.Delete(&projectRow{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting project %s: %w", id, err)
		}

		return nil
	})
}

// AddClip appends a clip to the stored project document.
func (s *Store) AddClip(projectID string, clip *model.Clip) error {
	if clip.ID == "" {
		clip.ID = model.NewID()
	}

	return s.mutateProject(projectID, func(p *model.Project) error {
		p.Clips = append(p.Clips, *clip)
		return nil
	})
}

// UpdateClip replaces the stored clip with the same id.
func (s *Store) UpdateClip(projectID string, clip *model.Clip) error {
	return s.mutateProject(projectID, func(p *model.Project) error {
		for i := range p.Clips {
			if p.Clips[i].ID == clip.ID {
				p.Clips[i] = *clip
				return nil
			}
		}

		return fmt.Errorf("%w: clip %s in project %s", ErrNotFound, clip.ID, projectID)
	})
}

// mutateProject runs a read-modify-write cycle on one project document
// inside a transaction, so concurrent clip writes cannot lose each other.
func (s *Store) mutateProject(projectID string, mutate func(*model.Project) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row projectRow
		if err := tx.First(&row, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
			}
			return fmt.Errorf("loading project %s: %w", projectID, err)
		}

		p, _, err := exchange.UnmarshalProject(row.Document)
		if err != nil {
			return fmt.Errorf("decoding project %s: %w", projectID, err)
		}

		if err := mutate(p); err != nil {
			return err
		}

		doc, err := exchange.MarshalProject(p, nil)
		if err != nil {
			return fmt.Errorf("encoding project %s: %w", projectID, err)
		}

		row.Document = doc
		row.Name = p.Name

		return tx.Save(&row).Error
	})
}

// SaveTakeImmediate writes a take the moment recording stops, before any
// clip references it. A crash between this write and the clip update leaves
// an orphaned take, never a dangling reference.
func (s *Store) SaveTakeImmediate(take *model.AudioTake) error {
	if take.ID == "" {
		take.ID = model.NewID()
	}
	if take.CreatedAt.IsZero() {
		take.CreatedAt = time.Now()
	}

	row := takeRow{
		ID:              take.ID,
		ClipID:          take.ClipID,
		SampleRate:      take.SampleRate,
		Channels:        take.Channels,
		DurationSeconds: take.DurationSeconds,
		CreatedAt:       take.CreatedAt,
		PCM:             take.PCM,
	}

	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("saving take %s: %w", take.ID, err)
	}

	slog.Debug(fmt.Sprintf("saved take %s for clip %s (%.2fs, %d bytes)",
		take.ID, take.ClipID, take.DurationSeconds, len(take.PCM)))

	return nil
}

func takeFromRow(r *takeRow) *model.AudioTake {
	return &model.AudioTake{
		ID:              r.ID,
		ClipID:          r.ClipID,
		SampleRate:      r.SampleRate,
		Channels:        r.Channels,
		DurationSeconds: r.DurationSeconds,
		CreatedAt:       r.CreatedAt,
		PCM:             r.PCM,
	}
}

func (s *Store) GetTake(id string) (*model.AudioTake, error) {
	var row takeRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: take %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading take %s: %w", id, err)
	}

	return takeFromRow(&row), nil
}

// LoadTakesForClip returns every take recorded against a clip, oldest first.
func (s *Store) LoadTakesForClip(clipID string) ([]model.AudioTake, error) {
	var rows []takeRow
	if err := s.db.Where("clip_id = ?", clipID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading takes for clip %s: %w", clipID, err)
	}

	takes := make([]model.AudioTake, 0, len(rows))
	for i := range rows {
		takes = append(takes, *takeFromRow(&rows[i]))
	}

	return takes, nil
}

// ActiveTake resolves the take a clip currently plays. Projects are scanned
// because clip ids are globally unique but the clip itself lives inside a
// project document.
func (s *Store) ActiveTake(clipID string) (*model.AudioTake, error) {
	var rows []projectRow
	if err := s.db.Select("id", "document").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scanning projects: %w", err)
	}

	for i := range rows {
		p, _, err := exchange.UnmarshalProject(rows[i].Document)
		if err != nil {
			slog.Warn(fmt.Sprintf("skipping undecodable project %s: %v", rows[i].ID, err))
			continue
		}

		for j := range p.Clips {
			if p.Clips[j].ID != clipID {
				continue
			}
			if p.Clips[j].ActiveTakeID == "" {
				return nil, fmt.Errorf("%w: clip %s", ErrNoActiveTake, clipID)
			}

			return s.GetTake(p.Clips[j].ActiveTakeID)
		}
	}

	return nil, fmt.Errorf("%w: clip %s", ErrNotFound, clipID)
}

// SaveCalibration persists a latency calibration result so later sessions
// can compensate without re-running the loopback measurement.
func (s *Store) SaveCalibration(res *model.LatencyCalibrationResult) error {
	value, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding calibration: %w", err)
	}

	row := settingRow{Key: calibrationKey, Value: value}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("saving calibration: %w", err)
	}

	return nil
}

func (s *Store) LoadCalibration() (*model.LatencyCalibrationResult, error) {
	var row settingRow
	if err := s.db.First(&row, "key = ?", calibrationKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no calibration stored", ErrNotFound)
		}
		return nil, fmt.Errorf("loading calibration: %w", err)
	}

	var res model.LatencyCalibrationResult
	if err := json.Unmarshal(row.Value, &res); err != nil {
		return nil, fmt.Errorf("decoding calibration: %w", err)
	}

	return &res, nil
}
