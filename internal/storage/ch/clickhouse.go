package ch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// ClickHouseDB stores every collection in one versioned records table.
// Updates and deletes insert a newer version of the row; reads use FINAL.
type ClickHouseDB struct {
	conn clickhouse.Conn

	versionMu   sync.Mutex
	lastVersion uint64
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

const selectRecords = `SELECT id, created_by, created_date, updated_date, fields
	FROM records FINAL
	WHERE collection = ? AND is_deleted = 0`

// List returns every live record of a collection in creation order
func (db *ClickHouseDB) List(ctx context.Context, collection string) ([]models.Record, error) {
	return db.Filter(ctx, collection, nil, "")
}

// Filter returns matching records. Owner filters are pushed into the query,
// the remaining conditions are applied to the decoded fields.
func (db *ClickHouseDB) Filter(ctx context.Context, collection string, match map[string]any, sortKey string) ([]models.Record, error) {
	query := selectRecords
	args := []any{collection}
	if owner, ok := match["created_by"].(string); ok {
		query += ` AND created_by = ?`
		args = append(args, owner)
	}
	if id, ok := match["id"].(string); ok {
		query += ` AND id = ?`
		args = append(args, id)
	}

	records, err := db.query(ctx, query+` ORDER BY created_date`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s: %w", collection, err)
	}
	return storage.FilterRecords(records, match, sortKey), nil
}

// timestamp returns the current time at the DateTime64(3) column precision,
// so returned records equal what a later read yields
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Create inserts a new record
func (db *ClickHouseDB) Create(ctx context.Context, collection, createdBy string, fields map[string]any) (models.Record, error) {
	now := timestamp()
	r := models.Record{
		ID:          uuid.NewString(),
		CreatedBy:   createdBy,
		CreatedDate: now,
		UpdatedDate: now,
		Fields:      storage.MergeFields(nil, fields),
	}
	if err := db.insert(ctx, collection, r, false); err != nil {
		return models.Record{}, fmt.Errorf("failed to create %s: %w", collection, err)
	}
	return r, nil
}

// Update merges fields into an existing record by inserting a new version
func (db *ClickHouseDB) Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error) {
	current, err := db.get(ctx, collection, id)
	if err != nil {
		return models.Record{}, err
	}

	current.Fields = storage.MergeFields(current.Fields, fields)
	current.UpdatedDate = timestamp()
	if err := db.insert(ctx, collection, current, false); err != nil {
		return models.Record{}, fmt.Errorf("failed to update %s %s: %w", collection, id, err)
	}
	return current, nil
}

// Delete marks a record deleted
func (db *ClickHouseDB) Delete(ctx context.Context, collection, id string) error {
	current, err := db.get(ctx, collection, id)
	if err != nil {
		return err
	}

	current.UpdatedDate = timestamp()
	if err := db.insert(ctx, collection, current, true); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, id, err)
	}
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *ClickHouseDB) get(ctx context.Context, collection, id string) (models.Record, error) {
	records, err := db.query(ctx, selectRecords+` AND id = ?`, collection, id)
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	if len(records) == 0 {
		return models.Record{}, fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	return records[0], nil
}

func (db *ClickHouseDB) query(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			r      models.Record
			fields string
		)
		if err := rows.Scan(&r.ID, &r.CreatedBy, &r.CreatedDate, &r.UpdatedDate, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields of %s: %w", r.ID, err)
		}
		if r.Fields == nil {
			r.Fields = make(map[string]any)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (db *ClickHouseDB) insert(ctx context.Context, collection string, r models.Record, deleted bool) error {
	encoded, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	var isDeleted uint8
	if deleted {
		isDeleted = 1
	}

	return db.conn.Exec(ctx, `INSERT INTO records
		(collection, id, created_by, created_date, updated_date, fields, version, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		collection, r.ID, r.CreatedBy, r.CreatedDate, r.UpdatedDate, string(encoded), db.nextVersion(), isDeleted)
}

// nextVersion returns a strictly increasing row version
func (db *ClickHouseDB) nextVersion() uint64 {
	db.versionMu.Lock()
	defer db.versionMu.Unlock()

	v := uint64(time.Now().UnixNano())
	if v <= db.lastVersion {
		v = db.lastVersion + 1
	}
	db.lastVersion = v
	return v
}
