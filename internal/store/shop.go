package store

import (
	"database/sql"
	"time"
)

// CreateShop inserts a new shop and returns its id.
func (db *DB) CreateShop(s *Shop) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO shops (name, shop_url, client_id, client_secret, user_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.ShopURL, s.ClientID, s.ClientSecret, s.UserID, s.IsActive, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListShops returns all shops ordered by name.
func (db *DB) ListShops() ([]Shop, error) {
	return db.listShops(`SELECT id, name, shop_url, client_id, client_secret, user_id, is_active FROM shops ORDER BY name`)
}

// ListActiveShops returns active shops that have API credentials and a
// remote user id configured. Shops missing any of the three cannot be synced
// and are skipped rather than failed every pass.
func (db *DB) ListActiveShops() ([]Shop, error) {
	return db.listShops(`
		SELECT id, name, shop_url, client_id, client_secret, user_id, is_active
		FROM shops
		WHERE is_active = 1 AND client_id != '' AND client_secret != '' AND user_id != ''
		ORDER BY name`)
}

func (db *DB) listShops(query string) ([]Shop, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var shops []Shop
	for rows.Next() {
		var s Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.ShopURL, &s.ClientID, &s.ClientSecret, &s.UserID, &s.IsActive); err != nil {
			return nil, err
		}
		shops = append(shops, s)
	}
	return shops, rows.Err()
}

// GetShop returns a single shop by id, or nil if not found.
func (db *DB) GetShop(id int64) (*Shop, error) {
	var s Shop
	err := db.QueryRow(`
		SELECT id, name, shop_url, client_id, client_secret, user_id, is_active
		FROM shops WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.ShopURL, &s.ClientID, &s.ClientSecret, &s.UserID, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetShopActive toggles a shop's active flag.
func (db *DB) SetShopActive(id int64, active bool) error {
	_, err := db.Exec(`UPDATE shops SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixMilli(), id)
	return err
}
