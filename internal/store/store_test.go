package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var errTest = errors.New("test failure")

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testShop(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := db.CreateShop(&Shop{
		Name:         "Main Store",
		ShopURL:      "https://www.avito.ru/brands/main-store",
		ClientID:     "cid",
		ClientSecret: "secret",
		UserID:       "100",
		IsActive:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestListActiveShopsSkipsUnconfigured(t *testing.T) {
	db := testDB(t)
	testShop(t, db)
	if _, err := db.CreateShop(&Shop{Name: "No Creds", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateShop(&Shop{Name: "Disabled", ClientID: "x", ClientSecret: "y", UserID: "200", IsActive: false}); err != nil {
		t.Fatal(err)
	}
	// Credentials but no remote user id: there is no account to sync.
	if _, err := db.CreateShop(&Shop{Name: "No User", ClientID: "x", ClientSecret: "y", IsActive: true}); err != nil {
		t.Fatal(err)
	}

	shops, err := db.ListActiveShops()
	if err != nil {
		t.Fatal(err)
	}
	if len(shops) != 1 {
		t.Fatalf("active shops = %d, want 1", len(shops))
	}
	if shops[0].Name != "Main Store" {
		t.Errorf("shop name = %q, want Main Store", shops[0].Name)
	}
}

func TestCreateChatForcesActiveNew(t *testing.T) {
	db := testDB(t)
	shopID := testShop(t, db)

	var chatID int64
	err := db.InTx(func(tx *Tx) error {
		var err error
		chatID, err = tx.CreateChat(&Chat{
			ShopID:   shopID,
			RemoteID: "r1",
			Status:   "completed", // must be ignored
			Priority: "urgent",    // must be ignored
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != ChatStatusActive {
		t.Errorf("status = %q, want %q", c.Status, ChatStatusActive)
	}
	if c.Priority != ChatPriorityNew {
		t.Errorf("priority = %q, want %q", c.Priority, ChatPriorityNew)
	}
}

func TestUpdateChatSyncPreservesOperatorFields(t *testing.T) {
	db := testDB(t)
	shopID := testShop(t, db)

	var chatID int64
	err := db.InTx(func(tx *Tx) error {
		var err error
		chatID, err = tx.CreateChat(&Chat{ShopID: shopID, RemoteID: "r1", ProductURL: "https://www.avito.ru/items/5"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	// Operator moves the chat along.
	if _, err := db.Exec(`UPDATE chats SET status = 'waiting', priority = 'urgent', assigned_manager_id = 7 WHERE id = ?`, chatID); err != nil {
		t.Fatal(err)
	}

	err = db.InTx(func(tx *Tx) error {
		return tx.UpdateChatSync(&Chat{
			ID:          chatID,
			ClientName:  "Ivan",
			CustomerID:  "42",
			LastMessage: "still there?",
			UnreadCount: 2,
			ProductURL:  "", // must not clear the stored URL
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != "waiting" || c.Priority != "urgent" {
		t.Errorf("operator fields changed: status=%q priority=%q", c.Status, c.Priority)
	}
	if !c.AssignedManagerID.Valid || c.AssignedManagerID.Int64 != 7 {
		t.Errorf("assigned_manager_id = %v, want 7", c.AssignedManagerID)
	}
	if c.ProductURL != "https://www.avito.ru/items/5" {
		t.Errorf("product_url = %q, empty update must not clear it", c.ProductURL)
	}
	if c.ClientName != "Ivan" || c.UnreadCount != 2 {
		t.Errorf("sync fields not updated: %+v", c)
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	db := testDB(t)
	shopID := testShop(t, db)

	var chatID int64
	err := db.InTx(func(tx *Tx) error {
		var err error
		chatID, err = tx.CreateChat(&Chat{ShopID: shopID, RemoteID: "r1"})
		if err != nil {
			return err
		}
		m := &Message{ChatID: chatID, RemoteID: "m1", Direction: DirectionIn, Body: "hi", Timestamp: time.Now().UnixMilli()}
		inserted, err := tx.InsertMessage(m)
		if err != nil {
			return err
		}
		if !inserted {
			t.Error("first insert should report inserted=true")
		}
		inserted, err = tx.InsertMessage(m)
		if err != nil {
			return err
		}
		if inserted {
			t.Error("duplicate insert should report inserted=false")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(chatID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages = %d, want 1", len(msgs))
	}
}

func TestUpdateChatActivityReopensCompleted(t *testing.T) {
	db := testDB(t)
	shopID := testShop(t, db)

	var chatID int64
	err := db.InTx(func(tx *Tx) error {
		var err error
		chatID, err = tx.CreateChat(&Chat{ShopID: shopID, RemoteID: "r1"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE chats SET status = 'completed' WHERE id = ?`, chatID); err != nil {
		t.Fatal(err)
	}

	err = db.InTx(func(tx *Tx) error {
		return tx.UpdateChatActivity(chatID, 15, true)
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != ChatStatusActive {
		t.Errorf("status = %q, want reopened to %q", c.Status, ChatStatusActive)
	}
	if c.ResponseTimer != 15 {
		t.Errorf("response_timer = %d, want 15", c.ResponseTimer)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	db := testDB(t)
	shopID := testShop(t, db)

	wantErr := errTest
	err := db.InTx(func(tx *Tx) error {
		if _, err := tx.CreateChat(&Chat{ShopID: shopID, RemoteID: "r1"}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("InTx error = %v, want %v", err, wantErr)
	}

	c, err := db.GetChatByRemoteID(shopID, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("chat should have been rolled back")
	}
}

func TestUpsertListingIdempotent(t *testing.T) {
	db := testDB(t)

	l := &Listing{RemoteID: "777", Title: "Bike", Price: 15000, URL: "https://www.avito.ru/items/777"}
	if err := db.UpsertListing(l); err != nil {
		t.Fatal(err)
	}
	l.Price = 14000
	if err := db.UpsertListing(l); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetListingByRemoteID("777")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("listing not found")
	}
	if got.Price != 14000 {
		t.Errorf("price = %d, want 14000", got.Price)
	}

	all, err := db.ListListings(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("listings = %d, want 1", len(all))
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	db := testDB(t)

	v, err := db.GetSyncState(SyncStateLastPassAt)
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("absent key = %q, want empty", v)
	}

	if err := db.SetSyncState(SyncStateLastPassAt, "123"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState(SyncStateLastPassAt, "456"); err != nil {
		t.Fatal(err)
	}

	v, err = db.GetSyncState(SyncStateLastPassAt)
	if err != nil {
		t.Fatal(err)
	}
	if v != "456" {
		t.Errorf("value = %q, want 456", v)
	}
}
