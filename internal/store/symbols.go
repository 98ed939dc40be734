package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SymbolID returns the object bound to symbol, or 0 if unbound.
func (db *DB) SymbolID(ctx context.Context, symbol string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM symbols WHERE symbol = ?`, symbol).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("symbol %q: %w", symbol, err)
	}
	return id, nil
}

// BindSymbol records symbol <-> id.
func (db *DB) BindSymbol(ctx context.Context, symbol string, id int64) error {
	if _, err := db.ExecContext(ctx, `INSERT INTO symbols (id, symbol) VALUES (?, ?)`, id, symbol); err != nil {
		return fmt.Errorf("bind symbol %q to %d: %w", symbol, id, err)
	}
	return nil
}

// AllSymbols returns every binding.
func (db *DB) AllSymbols(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, id FROM symbols`)
	if err != nil {
		return nil, fmt.Errorf("all symbols: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var id int64
		if err := rows.Scan(&symbol, &id); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out[symbol] = id
	}
	return out, rows.Err()
}
