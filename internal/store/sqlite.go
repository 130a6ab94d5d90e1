package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/exemplar/internal/types"
	_ "modernc.org/sqlite"
)

// MinContentLength is the minimum trimmed content length in characters
// accepted by Insert. Shorter text carries no usable style signal and is
// rejected before any write.
const MinContentLength = 10

// timeLayout keeps fractional seconds fixed-width so the TEXT columns sort
// lexicographically in chronological order (RFC3339Nano trims trailing zeros).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the SQLite-backed exemplar database.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PackEmbedding packs float32 values into a little-endian byte slice.
func PackEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// UnpackEmbedding unpacks a byte slice into float32 values.
func UnpackEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

const exemplarColumns = `id, content, sender_id, group_id, embedding, weight, dimensions,
       helpful_count, harmful_count, created_at, updated_at`

// scanExemplar scans a row into an Exemplar, handling BLOB unpacking.
func scanExemplar(scanner interface{ Scan(...any) error }) (*types.Exemplar, error) {
	var ex types.Exemplar
	var senderID sql.NullString
	var embeddingBlob []byte
	var createdAt, updatedAt string

	err := scanner.Scan(
		&ex.ID,
		&ex.Content,
		&senderID,
		&ex.GroupID,
		&embeddingBlob,
		&ex.Weight,
		&ex.Dimensions,
		&ex.HelpfulCount,
		&ex.HarmfulCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if senderID.Valid {
		ex.SenderID = senderID.String
	}
	if len(embeddingBlob) > 0 {
		ex.Embedding = UnpackEmbedding(embeddingBlob)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		ex.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		ex.UpdatedAt = t
	}

	return &ex, nil
}

// Insert persists a new exemplar and returns its assigned id.
func (s *SQLiteStore) Insert(ctx context.Context, ex types.Exemplar) (int64, error) {
	// Rune count, not bytes: multi-byte scripts must clear the same floor.
	if utf8.RuneCountInString(strings.TrimSpace(ex.Content)) < MinContentLength {
		return 0, ErrContentTooShort
	}

	if ex.Weight <= 0 {
		ex.Weight = 1.0
	}

	var embeddingBlob []byte
	if ex.HasEmbedding() {
		embeddingBlob = PackEmbedding(ex.Embedding)
		ex.Dimensions = len(ex.Embedding)
	}

	var senderID any
	if ex.SenderID != "" {
		senderID = ex.SenderID
	}

	now := time.Now().UTC().Format(timeLayout)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO exemplars (content, sender_id, group_id, embedding, weight, dimensions,
		                       helpful_count, harmful_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ex.Content, senderID, ex.GroupID, embeddingBlob, ex.Weight, ex.Dimensions,
		ex.HelpfulCount, ex.HarmfulCount, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert exemplar: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	return id, nil
}

// UpdateFields applies a partial update, always touching updated_at.
func (s *SQLiteStore) UpdateFields(ctx context.Context, id int64, fields types.UpdateFields) (bool, error) {
	if fields.IsZero() {
		return false, nil
	}

	var sets []string
	var args []any

	if fields.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.Weight != nil {
		w := *fields.Weight
		if w < 0 {
			w = 0
		}
		sets = append(sets, "weight = ?")
		args = append(args, w)
	}
	if fields.HelpfulCount != nil {
		sets = append(sets, "helpful_count = ?")
		args = append(args, *fields.HelpfulCount)
	}
	if fields.HarmfulCount != nil {
		sets = append(sets, "harmful_count = ?")
		args = append(args, *fields.HarmfulCount)
	}
	if fields.SetEmbedding {
		sets = append(sets, "embedding = ?", "dimensions = ?")
		if len(fields.Embedding) > 0 {
			args = append(args, PackEmbedding(fields.Embedding), len(fields.Embedding))
		} else {
			args = append(args, nil, 0)
		}
	}
	if fields.Dimensions != nil {
		sets = append(sets, "dimensions = ?")
		args = append(args, *fields.Dimensions)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout), id)

	query := "UPDATE exemplars SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update exemplar: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return affected > 0, nil
}

// placeholders returns "?, ?, ..., ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// DeleteMany removes the given rows and returns the number deleted.
func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyBatch
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM exemplars WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete exemplars: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return affected, nil
}

// DeleteOne removes a single row and returns its group id so callers can
// drop per-group caches. Returns ErrNotFound when no row matched.
func (s *SQLiteStore) DeleteOne(ctx context.Context, id int64) (string, error) {
	var groupID string
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM exemplars WHERE id = ? RETURNING group_id", id).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete exemplar: %w", err)
	}

	return groupID, nil
}

func (s *SQLiteStore) selectExemplars(ctx context.Context, query string, args ...any) ([]types.Exemplar, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exemplars: %w", err)
	}
	defer rows.Close()

	var exemplars []types.Exemplar
	for rows.Next() {
		ex, err := scanExemplar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		exemplars = append(exemplars, *ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return exemplars, nil
}

// SelectTopByWeight returns up to limit rows ordered by weight desc, created_at desc.
func (s *SQLiteStore) SelectTopByWeight(ctx context.Context, groupID string, limit int) ([]types.Exemplar, error) {
	return s.selectExemplars(ctx, `
		SELECT `+exemplarColumns+`
		FROM exemplars
		WHERE group_id = ?
		ORDER BY weight DESC, created_at DESC
		LIMIT ?
	`, groupID, limit)
}

// SelectWithEmbeddings returns up to limit rows with non-null embeddings,
// ordered by weight desc, created_at desc.
func (s *SQLiteStore) SelectWithEmbeddings(ctx context.Context, groupID string, limit int) ([]types.Exemplar, error) {
	return s.selectExemplars(ctx, `
		SELECT `+exemplarColumns+`
		FROM exemplars
		WHERE group_id = ? AND embedding IS NOT NULL
		ORDER BY weight DESC, created_at DESC
		LIMIT ?
	`, groupID, limit)
}

// Count returns the number of rows in the group.
func (s *SQLiteStore) Count(ctx context.Context, groupID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM exemplars WHERE group_id = ?", groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count exemplars: %w", err)
	}
	return count, nil
}

// TotalCount returns the number of rows across all groups.
func (s *SQLiteStore) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exemplars").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count exemplars: %w", err)
	}
	return count, nil
}

// AggregateFeedback sums helpful/harmful counters and takes the maximum weight
// over the given rows.
func (s *SQLiteStore) AggregateFeedback(ctx context.Context, ids []int64) (*types.FeedbackAggregate, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var agg types.FeedbackAggregate
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(helpful_count), 0),
		       COALESCE(SUM(harmful_count), 0),
		       COALESCE(MAX(weight), 0)
		FROM exemplars
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...).Scan(&agg.TotalHelpful, &agg.TotalHarmful, &agg.MaxWeight)
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback: %w", err)
	}

	return &agg, nil
}

// IncrementFeedback bumps the helpful or harmful counter by one on every given
// row in a single statement.
func (s *SQLiteStore) IncrementFeedback(ctx context.Context, ids []int64, helpful bool) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyBatch
	}

	column := "harmful_count"
	if helpful {
		column = "helpful_count"
	}

	args := []any{time.Now().UTC().Format(timeLayout)}
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE exemplars
		SET `+column+` = `+column+` + 1, updated_at = ?
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("increment feedback: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return affected, nil
}

// AdjustWeight adds delta to the row's weight, clamping at zero.
func (s *SQLiteStore) AdjustWeight(ctx context.Context, id int64, delta float64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exemplars
		SET weight = MAX(0, weight + ?), updated_at = ?
		WHERE id = ?
	`, delta, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return false, fmt.Errorf("adjust weight: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return affected > 0, nil
}

// EvictLowestRanked deletes the excess rows with the smallest
// (weight, created_at) tuples from the group.
func (s *SQLiteStore) EvictLowestRanked(ctx context.Context, groupID string, excess int) (int64, error) {
	if excess <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM exemplars
		WHERE id IN (
			SELECT id FROM exemplars
			WHERE group_id = ?
			ORDER BY weight ASC, created_at ASC
			LIMIT ?
		)
	`, groupID, excess)
	if err != nil {
		return 0, fmt.Errorf("evict exemplars: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return affected, nil
}

// GroupStats returns aggregate statistics for one group.
func (s *SQLiteStore) GroupStats(ctx context.Context, groupID string) (*types.GroupStats, error) {
	var stats types.GroupStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(weight), 0),
		       COALESCE(SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(helpful_count), 0),
		       COALESCE(SUM(harmful_count), 0)
		FROM exemplars
		WHERE group_id = ?
	`, groupID).Scan(&stats.Total, &stats.AvgWeight, &stats.WithEmbeddings,
		&stats.TotalHelpful, &stats.TotalHarmful)
	if err != nil {
		return nil, fmt.Errorf("group stats: %w", err)
	}

	return &stats, nil
}

// ListGroups returns the distinct group ids currently stored.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT group_id FROM exemplars ORDER BY group_id")
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return groups, nil
}

// SelectMissingEmbeddings returns rows without a vector across all groups,
// oldest first, for background backfill.
func (s *SQLiteStore) SelectMissingEmbeddings(ctx context.Context, limit int) ([]types.Exemplar, error) {
	return s.selectExemplars(ctx, `
		SELECT `+exemplarColumns+`
		FROM exemplars
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
}
