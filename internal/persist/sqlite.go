package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spaolacci/murmur3"

	"github.com/sheetbase/sheetbase/internal/backend"
)

// SQLitePersister keeps one row per store and per tab. Tab cells are
// stored as snappy-compressed JSON with a murmur3 checksum column.
type SQLitePersister struct {
	db     *sql.DB
	dbPath string
}

// NewSQLitePersister opens (or creates) the database at dbPath.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	// Single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("persist: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	p := &SQLitePersister{db: db, dbPath: dbPath}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS stores (
			id       TEXT PRIMARY KEY,
			title    TEXT NOT NULL,
			position INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tabs (
			store_id TEXT NOT NULL REFERENCES stores(id),
			tab_id   INTEGER NOT NULL,
			position INTEGER NOT NULL,
			title    TEXT NOT NULL,
			cells    BLOB,
			checksum INTEGER NOT NULL,
			PRIMARY KEY (store_id, tab_id)
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

func (p *SQLitePersister) Load(ctx context.Context) (*backend.Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, title FROM stores ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("persist: failed to query stores: %w", err)
	}
	var snap backend.Snapshot
	index := make(map[string]int)
	for rows.Next() {
		var ss backend.StoreSnapshot
		if err := rows.Scan(&ss.ID, &ss.Title); err != nil {
			rows.Close()
			return nil, fmt.Errorf("persist: failed to scan store: %w", err)
		}
		index[ss.ID] = len(snap.Stores)
		snap.Stores = append(snap.Stores, ss)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snap.Stores) == 0 {
		return nil, nil
	}

	tabRows, err := p.db.QueryContext(ctx,
		`SELECT store_id, tab_id, title, cells, checksum FROM tabs ORDER BY store_id, position`)
	if err != nil {
		return nil, fmt.Errorf("persist: failed to query tabs: %w", err)
	}
	defer tabRows.Close()

	for tabRows.Next() {
		var (
			storeID  string
			ts       backend.TabSnapshot
			blob     []byte
			checksum int64
		)
		if err := tabRows.Scan(&storeID, &ts.ID, &ts.Title, &blob, &checksum); err != nil {
			return nil, fmt.Errorf("persist: failed to scan tab: %w", err)
		}
		i, ok := index[storeID]
		if !ok {
			return nil, fmt.Errorf("%w: tab %d references unknown store %s", ErrCorrupt, ts.ID, storeID)
		}
		cells, err := decodeCells(blob, uint32(checksum))
		if err != nil {
			return nil, fmt.Errorf("persist: store %s tab %q: %w", storeID, ts.Title, err)
		}
		ts.Cells = cells
		snap.Stores[i].Tabs = append(snap.Stores[i].Tabs, ts)
	}
	if err := tabRows.Err(); err != nil {
		return nil, err
	}

	var next string
	err = p.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_tab'`).Scan(&next)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("persist: failed to read meta: %w", err)
	default:
		snap.NextTab, _ = strconv.ParseInt(next, 10, 64)
	}
	return &snap, nil
}

// Save replaces every stored row in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, snap *backend.Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tabs`); err != nil {
		return fmt.Errorf("persist: failed to clear tabs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stores`); err != nil {
		return fmt.Errorf("persist: failed to clear stores: %w", err)
	}

	for i, ss := range snap.Stores {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stores (id, title, position) VALUES (?, ?, ?)`,
			ss.ID, ss.Title, i,
		); err != nil {
			return fmt.Errorf("persist: failed to insert store %s: %w", ss.ID, err)
		}
		for j, ts := range ss.Tabs {
			blob, checksum, err := encodeCells(ts.Cells)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tabs (store_id, tab_id, position, title, cells, checksum) VALUES (?, ?, ?, ?, ?, ?)`,
				ss.ID, ts.ID, j, ts.Title, blob, int64(checksum),
			); err != nil {
				return fmt.Errorf("persist: failed to insert tab %q: %w", ts.Title, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('next_tab', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatInt(snap.NextTab, 10),
	); err != nil {
		return fmt.Errorf("persist: failed to write meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

func encodeCells(cells [][]any) ([]byte, uint32, error) {
	raw, err := json.Marshal(cells)
	if err != nil {
		return nil, 0, fmt.Errorf("persist: marshal cells: %w", err)
	}
	return snappy.Encode(nil, raw), murmur3.Sum32(raw), nil
}

func decodeCells(blob []byte, checksum uint32) ([][]any, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress failed: %v", ErrCorrupt, err)
	}
	if murmur3.Sum32(raw) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	var cells [][]any
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("persist: unmarshal cells: %w", err)
	}
	return cells, nil
}
