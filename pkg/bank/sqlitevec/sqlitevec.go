// Package sqlitevec provides a SQLite-backed bank.Bank using sqlite-vec for
// KNN search over entry embeddings.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/embeddings"
	"github.com/papercomputeco/remem/pkg/memory"
)

// Bank implements bank.Bank using SQLite with the sqlite-vec extension.
type Bank struct {
	db       *sql.DB
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// Config holds configuration for the sqlite-vec bank.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the embedding dimension for the vec0 table.
	Dimensions uint
}

// NewBank opens (or creates) the bank database. Embeddings are generated
// through the provided embedder on insert, rewrite, and query.
func NewBank(c Config, embedder embeddings.Embedder, logger *zap.Logger) (*Bank, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so entry metadata lives in a
	// companion table whose rowid links the two.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bank_entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id TEXT NOT NULL UNIQUE,
			topic_summary TEXT NOT NULL,
			raw_dialogue TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			turn_refs TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS bank_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec bank initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Bank{db: db, embedder: embedder, logger: logger}, nil
}

// serializeVector converts an embedding to the little-endian float32 BLOB
// format sqlite-vec expects.
func serializeVector(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

// Search embeds the query and runs a KNN query against the vec0 table.
func (b *Bank) Search(ctx context.Context, query string, k int) ([]bank.Match, error) {
	if k <= 0 {
		k = 5
	}

	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT
			e.entry_id,
			e.topic_summary,
			e.raw_dialogue,
			e.session_id,
			e.created_at,
			e.turn_refs,
			ve.distance
		FROM bank_embeddings ve
		INNER JOIN bank_entries e ON e.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, serializeVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []bank.Match
	for rows.Next() {
		var entryID, summary, dialogue, sessionID, turnRefsJSON string
		var createdMs int64
		var distance float64
		if err := rows.Scan(&entryID, &summary, &dialogue, &sessionID, &createdMs, &turnRefsJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		var turnRefs []int
		if err := json.Unmarshal([]byte(turnRefsJSON), &turnRefs); err != nil {
			turnRefs = nil
		}

		matches = append(matches, bank.Match{
			Content: summary,
			// Convert distance to similarity: lower distance = higher similarity
			Score: 1.0 / (1.0 + distance),
			Metadata: bank.Metadata{
				ID:          entryID,
				SessionID:   sessionID,
				TurnRefs:    turnRefs,
				Timestamp:   time.UnixMilli(createdMs),
				RawDialogue: dialogue,
			},
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	b.logger.Debug("searched sqlite-vec bank",
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// Insert adds an entry, embedding its topic summary if the entry carries no
// embedding of its own.
func (b *Bank) Insert(ctx context.Context, entry *memory.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	embedding := entry.Embedding
	if len(embedding) == 0 {
		vec, err := b.embedder.Embed(ctx, entry.TopicSummary)
		if err != nil {
			return fmt.Errorf("embedding entry: %w", err)
		}
		embedding = vec
	}

	turnRefsJSON, err := json.Marshal(entry.TurnRefs)
	if err != nil {
		return fmt.Errorf("marshaling turn refs: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO bank_entries (entry_id, topic_summary, raw_dialogue, session_id, created_at, turn_refs)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TopicSummary, entry.RawDialogue, entry.SessionID, entry.CreatedAt.UnixMilli(), string(turnRefsJSON))
	if err != nil {
		return fmt.Errorf("inserting entry %s: %w", entry.ID, err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting rowid for entry %s: %w", entry.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bank_embeddings(rowid, embedding) VALUES (?, ?)`,
		rowID, serializeVector(embedding),
	); err != nil {
		return fmt.Errorf("inserting embedding for entry %s: %w", entry.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	b.logger.Debug("inserted entry into sqlite-vec bank",
		zap.String("entry_id", entry.ID),
	)

	return nil
}

// Rewrite replaces an entry's summary and dialogue and re-embeds the summary.
func (b *Bank) Rewrite(ctx context.Context, id, topicSummary, rawDialogue string) error {
	vec, err := b.embedder.Embed(ctx, topicSummary)
	if err != nil {
		return fmt.Errorf("embedding merged summary: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var rowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM bank_entries WHERE entry_id = ?`, id,
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("looking up entry %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bank_entries SET topic_summary = ?, raw_dialogue = ? WHERE rowid = ?`,
		topicSummary, rawDialogue, rowID,
	); err != nil {
		return fmt.Errorf("updating entry %s: %w", id, err)
	}

	// vec0 does not support UPDATE; replace via DELETE + INSERT.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bank_embeddings WHERE rowid = ?`, rowID,
	); err != nil {
		return fmt.Errorf("deleting old embedding for entry %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bank_embeddings(rowid, embedding) VALUES (?, ?)`,
		rowID, serializeVector(vec),
	); err != nil {
		return fmt.Errorf("re-inserting embedding for entry %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close closes the database.
func (b *Bank) Close() error {
	return b.db.Close()
}

var _ bank.Bank = (*Bank)(nil)
