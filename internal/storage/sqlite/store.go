package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"cattle-worker-go/internal/models"
)

var (
	// ErrNotFound indicates that the requested row does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput indicates a request the store refuses to persist.
	ErrInvalidInput = errors.New("invalid input")
)

const timeLayout = time.RFC3339Nano

// Store is the entity store backed by a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens dsn (a file path or ":memory:"), configures WAL and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func tableFor(c models.Category) (string, error) {
	switch c {
	case models.CategoryAnimal:
		return "cattle", nil
	case models.CategoryPerson:
		return "people", nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, c)
	}
}

// Register inserts a new entity and returns its id.
func (s *Store) Register(ctx context.Context, e models.NewEntity) (int64, error) {
	table, err := tableFor(e.Category)
	if err != nil {
		return 0, err
	}
	if e.Name == "" || len(e.Embedding) == 0 {
		return 0, fmt.Errorf("%w: name and embedding are required", ErrInvalidInput)
	}

	var weight sql.NullFloat64
	if e.Weight != nil {
		weight = sql.NullFloat64{Float64: *e.Weight, Valid: true}
	}
	registeredAt := s.now().UTC().Format(timeLayout)
	blob := EncodeEmbedding(e.Embedding)

	var res sql.Result
	if table == "cattle" {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO cattle (farm_id, name, description, breed, weight, status, embedding_blob, photo_path, registered_at)
			VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?)`,
			e.TenantID, e.Name, e.Description, e.Breed, weight, blob, e.PhotoPath, registeredAt)
	} else {
		role := e.Role
		if role == "" {
			role = "visitor"
		}
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO people (farm_id, name, role, description, weight, embedding_blob, photo_path, registered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.TenantID, e.Name, role, e.Description, weight, blob, e.PhotoPath, registeredAt)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Exists reports whether name is taken within {tenant, category}.
func (s *Store) Exists(ctx context.Context, tenantID int64, category models.Category, name string) (bool, error) {
	table, err := tableFor(category)
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE farm_id = ? AND name = ? LIMIT 1", tenantID, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s name: %w", table, err)
	}
	return true, nil
}

// LoadWithEmbeddings returns every entity of the tenant's category.
func (s *Store) LoadWithEmbeddings(ctx context.Context, tenantID int64, category models.Category) ([]models.EntityRecord, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, embedding_blob FROM "+table+" WHERE farm_id = ? ORDER BY id", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.EntityRecord
	for rows.Next() {
		var (
			r    models.EntityRecord
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		r.Embedding, err = DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", r.ID, err)
		}
		r.Category = category
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdatePhoto sets the photo of an existing entity. The embedding is untouched.
func (s *Store) UpdatePhoto(ctx context.Context, category models.Category, id int64, path string) error {
	table, err := tableFor(category)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET photo_path = ? WHERE id = ?", path, id)
	if err != nil {
		return fmt.Errorf("failed to update %s photo: %w", table, err)
	}
	return expectOne(res)
}

// ListWithoutPhoto lists every entity of every tenant that has no photo yet.
func (s *Store) ListWithoutPhoto(ctx context.Context) ([]models.EntityRef, error) {
	var out []models.EntityRef
	for _, c := range models.Categories {
		table, _ := tableFor(c)
		rows, err := s.db.QueryContext(ctx,
			"SELECT farm_id, id FROM "+table+" WHERE photo_path IS NULL OR photo_path = '' ORDER BY id")
		if err != nil {
			return nil, fmt.Errorf("failed to query %s without photo: %w", table, err)
		}
		for rows.Next() {
			ref := models.EntityRef{Category: c}
			if err := rows.Scan(&ref.TenantID, &ref.ID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
			}
			out = append(out, ref)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RecordMovement appends a movement log line.
func (s *Store) RecordMovement(ctx context.Context, m models.Movement) (int64, error) {
	if !m.Category.IsValid() || m.EventType == "" {
		return 0, fmt.Errorf("%w: movement needs a category and event type", ErrInvalidInput)
	}
	at := m.DetectedAt
	if at.IsZero() {
		at = s.now()
	}
	source := m.Source
	if source == "" {
		source = "webcam"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO movements (farm_id, entity_type, entity_id, entity_name, event_type, source, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.TenantID, string(m.Category), m.EntityID, m.EntityName, m.EventType, source, at.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert movement: %w", err)
	}
	return res.LastInsertId()
}

// ListMovements returns the newest movements first. tenantID 0 lists all tenants.
func (s *Store) ListMovements(ctx context.Context, tenantID int64, limit int) ([]models.Movement, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, farm_id, entity_type, entity_id, entity_name, event_type, source, detected_at FROM movements"
	args := []interface{}{}
	if tenantID != 0 {
		query += " WHERE farm_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	out := make([]models.Movement, 0, limit)
	for rows.Next() {
		var (
			m        models.Movement
			category string
			at       string
		)
		if err := rows.Scan(&m.ID, &m.TenantID, &category, &m.EntityID, &m.EntityName, &m.EventType, &m.Source, &at); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Category = models.Category(category)
		m.DetectedAt, _ = time.Parse(timeLayout, at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertCamera inserts or replaces a camera, keeping its original created_at.
func (s *Store) UpsertCamera(ctx context.Context, c models.Camera) error {
	if c.ID == "" || c.URL == "" {
		return fmt.Errorf("%w: camera id and url are required", ErrInvalidInput)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cameras (id, farm_id, name, source_url, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			farm_id = excluded.farm_id,
			name = excluded.name,
			source_url = excluded.source_url,
			is_active = excluded.is_active`,
		c.ID, c.TenantID, c.Name, c.URL, boolToInt(c.Active), created.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to upsert camera %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCamera(ctx context.Context, id string) (models.Camera, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, farm_id, name, source_url, is_active, created_at FROM cameras WHERE id = ?", id)
	c, err := scanCamera(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Camera{}, fmt.Errorf("camera %s: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *Store) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, farm_id, name, source_url, is_active, created_at FROM cameras ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var out []models.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SetCameraActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE cameras SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update camera %s: %w", id, err)
	}
	return expectOne(res)
}

func (s *Store) DeleteCamera(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cameras WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete camera %s: %w", id, err)
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCamera(row scanner) (models.Camera, error) {
	var (
		c       models.Camera
		active  int
		created string
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.URL, &active, &created); err != nil {
		return models.Camera{}, err
	}
	c.Active = active != 0
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return c, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EncodeEmbedding packs a vector as little-endian float32.
func EncodeEmbedding(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
