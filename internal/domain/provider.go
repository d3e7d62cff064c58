package domain

import (
	"encoding/json"
	"time"
)

// Provider is one scrape source. Created once, rarely mutated; owns the
// activities and scrape jobs keyed to it.
type Provider struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Platform  string          `db:"platform"`
	Website   string          `db:"website"`
	IsActive  bool            `db:"is_active"`
	Config    json.RawMessage `db:"config"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
