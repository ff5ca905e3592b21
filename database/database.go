package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"livewatcher.com/models"
)

func InitDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT UNIQUE,
		product_id TEXT,
		title TEXT,
		price TEXT,
		image_url TEXT,
		link TEXT,
		room_id TEXT,
		room_name TEXT,
		room_url TEXT,
		source TEXT,
		raw TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`)

	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertProduct reports whether the product was not stored before.
func InsertProduct(db Execer, p models.Product, raw models.RawProduct) (bool, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("could not json marshal the product %s: %w", p.Title, err)
	}

	res, err := db.Exec(
		`INSERT OR IGNORE INTO products (key, product_id, title, price, image_url, link, room_id, room_name, room_url, source, raw) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Key, p.ProductID, p.Title, p.Price, p.ImageURL, p.Link, p.RoomID, p.RoomName, p.RoomURL, p.Source, string(data),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type SaveResult struct {
	NewCount int
	Results  []ItemResult
}

type ItemResult struct {
	IsNew   bool
	Product *models.Product
}

type Stats struct {
	Total int `json:"total"`
	Today int `json:"today"`
}

// Store is the content-addressed product store. The handle is opened lazily,
// so a closed Store reopens on its next use.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := s.conn(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := InitDatabase(s.path)
	if err != nil {
		return nil, fmt.Errorf("could not open product store %s: %w", s.path, err)
	}
	s.db = db
	return db, nil
}

// SaveProducts normalises and stores every raw product. Items that cannot be
// identified are left out of the results.
func (s *Store) SaveProducts(raw []models.RawProduct, room models.RoomContext, source models.Source) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return SaveResult{}, err
	}

	// The batch is stored or rolled back as a whole.
	tx, err := db.Begin()
	if err != nil {
		return SaveResult{}, fmt.Errorf("could not begin transaction: %w", err)
	}

	var result SaveResult
	for _, r := range raw {
		p, ok := Normalize(r, room, source)
		if !ok {
			continue
		}
		isNew, err := InsertProduct(tx, p, r)
		if err != nil {
			_ = tx.Rollback()
			return SaveResult{}, fmt.Errorf("could not insert product %q: %w", p.Title, err)
		}
		item := ItemResult{IsNew: isNew}
		if isNew {
			result.NewCount++
			item.Product = &p
		}
		result.Results = append(result.Results, item)
	}
	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("could not commit products: %w", err)
	}
	return result, nil
}

func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	err = db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN date(created_at) = date('now') THEN 1 ELSE 0 END), 0) FROM products`).
		Scan(&st.Total, &st.Today)
	if err != nil {
		return Stats{}, fmt.Errorf("could not count products: %w", err)
	}
	return st, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
