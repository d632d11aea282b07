package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lkrnac/manucap-sub004/internal/auth"
	"github.com/lkrnac/manucap-sub004/internal/cue"
	"github.com/lkrnac/manucap-sub004/internal/db/models"
)

type Database struct {
	db *sql.DB
}

func NewSQLite(path string) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'editor',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		language_id TEXT NOT NULL,
		language_name TEXT NOT NULL DEFAULT '',
		language_direction TEXT NOT NULL DEFAULT 'LTR',
		source_language_id TEXT,
		overlap_enabled INTEGER NOT NULL DEFAULT 0,
		media_chunk_start INTEGER,
		media_chunk_end INTEGER,
		spec TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cues (
		track_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		cue_id TEXT NOT NULL,
		start_time REAL NOT NULL,
		end_time REAL NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'DIALOGUE',
		style TEXT NOT NULL DEFAULT '{}',
		comments TEXT NOT NULL DEFAULT '[]',
		edit_disabled INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (track_id, idx),
		FOREIGN KEY (track_id) REFERENCES tracks(id)
	);

	CREATE TABLE IF NOT EXISTS source_cues (
		track_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		start_time REAL NOT NULL,
		end_time REAL NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (track_id, idx),
		FOREIGN KEY (track_id) REFERENCES tracks(id)
	);

	CREATE TABLE IF NOT EXISTS spell_ignores (
		track_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (track_id, hash)
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		track_id TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) EnsureAdmin(username, password string) error {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		"INSERT INTO users (username, password, role) VALUES (?, ?, 'admin')",
		username, hash,
	)
	return err
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Database) GetUserByID(id int64) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetTrack loads a track and its spec.
func (d *Database) GetTrack(id string) (*cue.Track, *cue.Specification, error) {
	track := &cue.Track{}
	var sourceLang sql.NullString
	var overlap int
	var chunkStart, chunkEnd sql.NullInt64
	var specJSON string

	err := d.db.QueryRow(`
		SELECT id, language_id, language_name, language_direction,
		       source_language_id, overlap_enabled, media_chunk_start, media_chunk_end, spec
		FROM tracks WHERE id = ?`, id,
	).Scan(&track.ID, &track.Language.ID, &track.Language.Name, &track.Language.Direction,
		&sourceLang, &overlap, &chunkStart, &chunkEnd, &specJSON)
	if err != nil {
		return nil, nil, err
	}

	track.OverlapEnabled = overlap != 0
	if sourceLang.Valid {
		track.SourceLanguage = &cue.Language{ID: sourceLang.String, Direction: cue.DirectionLTR}
	}
	if chunkStart.Valid {
		track.MediaChunkStart = &chunkStart.Int64
	}
	if chunkEnd.Valid {
		track.MediaChunkEnd = &chunkEnd.Int64
	}

	spec := &cue.Specification{}
	if err := json.Unmarshal([]byte(specJSON), spec); err != nil {
		return nil, nil, fmt.Errorf("decode spec for track %s: %w", id, err)
	}
	return track, spec, nil
}

// CreateTrack stores a track and its spec.
func (d *Database) CreateTrack(track *cue.Track, spec *cue.Specification) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	overlap := 0
	if track.OverlapEnabled {
		overlap = 1
	}
	var sourceLang interface{}
	if track.SourceLanguage != nil {
		sourceLang = track.SourceLanguage.ID
	}
	var chunkStart, chunkEnd interface{}
	if track.MediaChunkStart != nil {
		chunkStart = *track.MediaChunkStart
	}
	if track.MediaChunkEnd != nil {
		chunkEnd = *track.MediaChunkEnd
	}
	_, err = d.db.Exec(`
		INSERT INTO tracks (id, language_id, language_name, language_direction,
			source_language_id, overlap_enabled, media_chunk_start, media_chunk_end, spec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.Language.ID, track.Language.Name, track.Language.Direction,
		sourceLang, overlap, chunkStart, chunkEnd, string(specJSON),
	)
	return err
}

// ListTrackIDs returns all stored track ids.
func (d *Database) ListTrackIDs() ([]string, error) {
	rows, err := d.db.Query("SELECT id FROM tracks ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadCues returns a track's cue records in index order.
func (d *Database) LoadCues(trackID string) ([]*cue.Record, error) {
	rows, err := d.db.Query(`
		SELECT cue_id, start_time, end_time, text, category, style, comments, edit_disabled
		FROM cues WHERE track_id = ? ORDER BY idx ASC`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*cue.Record
	for rows.Next() {
		rec := cue.NewRecord(cue.TimeInterval{}, "")
		var styleJSON, commentsJSON string
		var editDisabled int
		if err := rows.Scan(&rec.ID, &rec.Interval.Start, &rec.Interval.End,
			&rec.Text, &rec.Category, &styleJSON, &commentsJSON, &editDisabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(styleJSON), &rec.Style); err != nil {
			return nil, fmt.Errorf("decode style: %w", err)
		}
		if err := json.Unmarshal([]byte(commentsJSON), &rec.Comments); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
		rec.EditDisabled = editDisabled != 0
		records = append(records, rec)
	}
	return records, nil
}

// SaveCue upserts one cue row.
func (d *Database) SaveCue(trackID string, idx int, rec *cue.Record) error {
	styleJSON, err := json.Marshal(rec.Style)
	if err != nil {
		return fmt.Errorf("encode style: %w", err)
	}
	comments := rec.Comments
	if comments == nil {
		comments = []cue.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	editDisabled := 0
	if rec.EditDisabled {
		editDisabled = 1
	}
	_, err = d.db.Exec(`
		INSERT INTO cues (track_id, idx, cue_id, start_time, end_time, text, category, style, comments, edit_disabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(track_id, idx) DO UPDATE SET
			cue_id=excluded.cue_id, start_time=excluded.start_time, end_time=excluded.end_time,
			text=excluded.text, category=excluded.category, style=excluded.style,
			comments=excluded.comments, edit_disabled=excluded.edit_disabled,
			updated_at=CURRENT_TIMESTAMP`,
		trackID, idx, rec.ID, rec.Interval.Start, rec.Interval.End,
		rec.Text, rec.Category, string(styleJSON), string(commentsJSON), editDisabled,
	)
	return err
}

// ReplaceCues rewrites a track's whole cue list in one transaction.
func (d *Database) ReplaceCues(trackID string, records []*cue.Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cues WHERE track_id = ?", trackID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO cues (track_id, idx, cue_id, start_time, end_time, text, category, style, comments, edit_disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for idx, rec := range records {
		styleJSON, err := json.Marshal(rec.Style)
		if err != nil {
			return fmt.Errorf("encode style: %w", err)
		}
		comments := rec.Comments
		if comments == nil {
			comments = []cue.Comment{}
		}
		commentsJSON, err := json.Marshal(comments)
		if err != nil {
			return fmt.Errorf("encode comments: %w", err)
		}
		editDisabled := 0
		if rec.EditDisabled {
			editDisabled = 1
		}
		if _, err := stmt.Exec(trackID, idx, rec.ID, rec.Interval.Start, rec.Interval.End,
			rec.Text, rec.Category, string(styleJSON), string(commentsJSON), editDisabled); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSourceCues returns the reference-language cues for a track.
func (d *Database) LoadSourceCues(trackID string) ([]*cue.Record, error) {
	rows, err := d.db.Query(`
		SELECT start_time, end_time, text
		FROM source_cues WHERE track_id = ? ORDER BY idx ASC`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*cue.Record
	for rows.Next() {
		rec := cue.NewRecord(cue.TimeInterval{}, "")
		if err := rows.Scan(&rec.Interval.Start, &rec.Interval.End, &rec.Text); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReplaceSourceCues rewrites a track's source cue list.
func (d *Database) ReplaceSourceCues(trackID string, records []*cue.Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM source_cues WHERE track_id = ?", trackID); err != nil {
		return err
	}
	for idx, rec := range records {
		if _, err := tx.Exec(
			"INSERT INTO source_cues (track_id, idx, start_time, end_time, text) VALUES (?, ?, ?, ?, ?)",
			trackID, idx, rec.Interval.Start, rec.Interval.End, rec.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadIgnores returns the spell-check ignore hashes for a track.
func (d *Database) LoadIgnores(trackID string) ([]string, error) {
	rows, err := d.db.Query("SELECT hash FROM spell_ignores WHERE track_id = ?", trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// AddIgnore stores one ignored keyword/rule hash for a track.
func (d *Database) AddIgnore(trackID, hash string) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO spell_ignores (track_id, hash) VALUES (?, ?)",
		trackID, hash,
	)
	return err
}

// DB exposes the underlying handle for collaborators that manage their
// own tables, such as the job queue.
func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) Close() error {
	return d.db.Close()
}
