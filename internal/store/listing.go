package store

import (
	"database/sql"
	"time"
)

// UpsertListing inserts or refreshes a listing keyed by remote id.
func (db *DB) UpsertListing(l *Listing) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO listings (remote_id, title, price, url, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			url = excluded.url,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		l.RemoteID, l.Title, l.Price, l.URL, l.Status, l.Data, now, now)
	return err
}

// GetListingByRemoteID returns a listing by its marketplace id, or nil.
func (db *DB) GetListingByRemoteID(remoteID string) (*Listing, error) {
	var l Listing
	err := db.QueryRow(`
		SELECT id, remote_id, title, price, url, status, data, created_at, updated_at
		FROM listings WHERE remote_id = ?`, remoteID).
		Scan(&l.ID, &l.RemoteID, &l.Title, &l.Price, &l.URL, &l.Status, &l.Data, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns listings ordered by last update descending.
func (db *DB) ListListings(limit, offset int) ([]Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, remote_id, title, price, url, status, data, created_at, updated_at
		FROM listings
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.RemoteID, &l.Title, &l.Price, &l.URL, &l.Status, &l.Data, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
