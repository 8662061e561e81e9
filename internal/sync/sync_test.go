package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/osagaming/avicrm/internal/store"
)

// fakeClient is an in-memory market.Client for tests.
type fakeClient struct {
	chats    []map[string]any
	chatsErr error

	detail      map[string]map[string]any
	detailErr   error
	detailCalls int

	messages map[string][]map[string]any
	msgErr   error
}

func (f *fakeClient) ListChats(_ context.Context, _ string, _, _ int) ([]map[string]any, error) {
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	return f.chats, nil
}

func (f *fakeClient) GetChat(_ context.Context, _, chatID string) (map[string]any, error) {
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if d, ok := f.detail[chatID]; ok {
		return d, nil
	}
	return map[string]any{}, nil
}

func (f *fakeClient) ListMessages(_ context.Context, _, chatID string, _, _ int) ([]map[string]any, error) {
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return f.messages[chatID], nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testShop(t *testing.T, db *store.DB) store.Shop {
	t.Helper()
	shop := store.Shop{
		Name:         "Main Store",
		ShopURL:      "https://www.avito.ru/brands/main-store",
		ClientID:     "cid",
		ClientSecret: "secret",
		UserID:       "100",
		IsActive:     true,
	}
	id, err := db.CreateShop(&shop)
	if err != nil {
		t.Fatal(err)
	}
	shop.ID = id
	return shop
}
