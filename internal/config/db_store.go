// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO
	"gopkg.in/yaml.v3"
)

// DBStore persists Settings in a SQLite database, the host-side counterpart
// of the ABI's database config source. The whole settings document is kept
// as one versioned row; subsystems read their own slices through their own
// connections.
type DBStore struct {
	db *sql.DB
}

// OpenDBStore opens (creating if needed) the settings database.
func OpenDBStore(path string) (*DBStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			document TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings db: %w", err)
	}
	return &DBStore{db: db}, nil
}

// Load reads the settings row. An empty database yields defaults.
func (s *DBStore) Load() (Settings, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM settings WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings := Defaults()
	if err := yaml.Unmarshal([]byte(doc), &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings document: %w", err)
	}
	return settings, nil
}

// Save upserts the settings row.
func (s *DBStore) Save(settings Settings) error {
	doc, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (id, document, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		string(doc))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *DBStore) Close() error { return s.db.Close() }
