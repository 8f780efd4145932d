package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

const TimeFormat = time.RFC3339

// FormRecord is one row of the forms table. The full document,
// including fields and logic, lives in raw_json; the other columns are
// denormalized for listing and slug lookup.
type FormRecord struct {
	ID        string
	Slug      string
	Name      string
	Meta      string
	RawJSON   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmissionRecord is one stored form answer. SeqID is a per-form
// sequence number assigned at insert time.
type SubmissionRecord struct {
	ID        string
	FormID    string
	SeqID     int
	Values    string
	CreatedAt time.Time
}

func InitDB(dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection keeps
	// concurrent requests queued in the driver instead of failing busy.
	DB.SetMaxOpenConns(1)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("error connecting to database: %w", err)
	}

	createTablesSQL := `
    CREATE TABLE IF NOT EXISTS forms (
        id TEXT PRIMARY KEY,
        slug TEXT UNIQUE NOT NULL,
        name TEXT,
        meta TEXT,
        raw_json TEXT,
        created_at DATETIME,
        updated_at DATETIME
    );

    CREATE TABLE IF NOT EXISTS form_submissions (
        id TEXT PRIMARY KEY,
        form_id TEXT NOT NULL,
        seq_id INTEGER NOT NULL,
        field_values TEXT,
        created_at DATETIME,
        UNIQUE (form_id, seq_id),
        FOREIGN KEY (form_id) REFERENCES forms(id)
    );
    `
	_, err = DB.Exec(createTablesSQL)
	if err != nil {
		DB.Close()
		return fmt.Errorf("error creating tables: %w", err)
	}
	log.Println("Database initialized and tables ensured.")
	return nil
}

func CloseDB() error {
	if DB != nil {
		err := DB.Close()
		if err != nil {
			log.Printf("Error closing database: %v", err)
			return fmt.Errorf("failed to close database: %w", err)
		}
		log.Println("Database connection closed.")
	}
	return nil
}

// SaveForm inserts or updates a form document. created_at is preserved
// on update.
func SaveForm(id, slug, name, meta, rawJSON string) error {
	now := time.Now().Format(TimeFormat)
	_, err := DB.Exec(
		`INSERT INTO forms (id, slug, name, meta, raw_json, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            slug=excluded.slug, name=excluded.name, meta=excluded.meta,
            raw_json=excluded.raw_json, updated_at=excluded.updated_at`,
		id, slug, name, meta, rawJSON, now, now,
	)
	return err
}

func scanForm(row *sql.Row) (*FormRecord, error) {
	var rec FormRecord
	var createdAtStr, updatedAtStr sql.NullString
	err := row.Scan(&rec.ID, &rec.Slug, &rec.Name, &rec.Meta, &rec.RawJSON, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}
	if createdAtStr.Valid {
		rec.CreatedAt, _ = time.Parse(TimeFormat, createdAtStr.String)
	}
	if updatedAtStr.Valid {
		rec.UpdatedAt, _ = time.Parse(TimeFormat, updatedAtStr.String)
	}
	return &rec, nil
}

// GetForm retrieves a form by its ID.
func GetForm(id string) (*FormRecord, error) {
	row := DB.QueryRow("SELECT id, slug, name, meta, raw_json, created_at, updated_at FROM forms WHERE id = ?", id)
	return scanForm(row)
}

// GetFormBySlug retrieves a form by its public slug.
func GetFormBySlug(slug string) (*FormRecord, error) {
	row := DB.QueryRow("SELECT id, slug, name, meta, raw_json, created_at, updated_at FROM forms WHERE slug = ?", slug)
	return scanForm(row)
}

// ListForms returns all forms, most recently updated first.
func ListForms() ([]FormRecord, error) {
	rows, err := DB.Query("SELECT id, slug, name, meta, raw_json, created_at, updated_at FROM forms ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FormRecord
	for rows.Next() {
		var rec FormRecord
		var createdAtStr, updatedAtStr sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Name, &rec.Meta, &rec.RawJSON, &createdAtStr, &updatedAtStr); err != nil {
			return nil, err
		}
		if createdAtStr.Valid {
			rec.CreatedAt, _ = time.Parse(TimeFormat, createdAtStr.String)
		}
		if updatedAtStr.Valid {
			rec.UpdatedAt, _ = time.Parse(TimeFormat, updatedAtStr.String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteForm removes a form and its submissions.
func DeleteForm(id string) error {
	if _, err := DB.Exec("DELETE FROM form_submissions WHERE form_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete submissions for form %s: %w", id, err)
	}
	res, err := DB.Exec("DELETE FROM forms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete form %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveSubmission stores one answer for a form, assigning the next
// per-form sequence number. The sequence is assigned inside the INSERT
// itself so concurrent submissions to the same form cannot collide.
func SaveSubmission(id, formID, valuesJSON string) (int, error) {
	now := time.Now().Format(TimeFormat)
	_, err := DB.Exec(
		`INSERT INTO form_submissions (id, form_id, seq_id, field_values, created_at)
        VALUES (?, ?, (SELECT COALESCE(MAX(seq_id), 0) + 1 FROM form_submissions WHERE form_id = ?), ?, ?)`,
		id, formID, formID, valuesJSON, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save submission for form %s: %w", formID, err)
	}

	var seq int
	row := DB.QueryRow("SELECT seq_id FROM form_submissions WHERE id = ?", id)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read back submission sequence for form %s: %w", formID, err)
	}
	return seq, nil
}

// ListSubmissions returns all submissions for a form in sequence order.
func ListSubmissions(formID string) ([]SubmissionRecord, error) {
	rows, err := DB.Query(
		"SELECT id, form_id, seq_id, field_values, created_at FROM form_submissions WHERE form_id = ? ORDER BY seq_id",
		formID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		var createdAtStr sql.NullString
		if err := rows.Scan(&rec.ID, &rec.FormID, &rec.SeqID, &rec.Values, &createdAtStr); err != nil {
			return nil, err
		}
		if createdAtStr.Valid {
			rec.CreatedAt, _ = time.Parse(TimeFormat, createdAtStr.String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
