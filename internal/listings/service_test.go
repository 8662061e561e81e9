package listings

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/store"
	syncpkg "github.com/osagaming/avicrm/internal/sync"
)

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

func TestExtractItemID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.avito.ru/shop/items/123456", "123456"},
		{"https://www.avito.ru/catalog?item_id=98765", "98765"},
		{"https://www.avito.ru/catalog?ITEM-ID=98765", "98765"},
		{"https://www.avito.ru/moskva/velosipedy/gornyi_2345678901", "2345678901"},
		{"https://www.avito.ru/listing/55555?from=search", "55555"},
		{"https://m.avito.ru/x9876543x", "9876543"},
		{"https://www.avito.ru/help", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractItemID(tt.url); got != tt.want {
			t.Errorf("ExtractItemID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"15 000 ₽", 15000},
		{"1500", 1500},
		{"₽", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParsePrice(tt.in); got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCaptureFromChat(t *testing.T) {
	db := testDB(t)
	s := NewService(db, zap.NewNop())

	chat := &store.Chat{
		ID:          1,
		ProductURL:  "https://www.avito.ru/shop/items/777",
		ListingData: []byte(`{"id": 777, "title": "Bike", "price_string": "15 000 ₽"}`),
	}
	if err := s.CaptureFromChat(chat); err != nil {
		t.Fatal(err)
	}

	l, err := db.GetListingByRemoteID("777")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil {
		t.Fatal("listing not captured")
	}
	if l.Title != "Bike" || l.Price != 15000 {
		t.Errorf("listing = %+v, want Bike at 15000", l)
	}
	if l.URL != chat.ProductURL {
		t.Errorf("url = %q, want chat product url", l.URL)
	}
}

func TestCaptureFromChatIDFromURL(t *testing.T) {
	db := testDB(t)
	s := NewService(db, zap.NewNop())

	// No descriptor id: the listing id comes from the URL.
	chat := &store.Chat{ID: 1, ProductURL: "https://www.avito.ru/items/4242"}
	if err := s.CaptureFromChat(chat); err != nil {
		t.Fatal(err)
	}

	l, err := db.GetListingByRemoteID("4242")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil {
		t.Fatal("listing not captured from url")
	}
}

func TestCaptureFromChatNothingToCapture(t *testing.T) {
	db := testDB(t)
	s := NewService(db, zap.NewNop())

	if err := s.CaptureFromChat(&store.Chat{ID: 1}); err != nil {
		t.Fatal(err)
	}
	all, err := db.ListListings(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("listings = %d, want 0", len(all))
	}
}

// The subscription must be live as soon as Start returns, and stop must
// process events still sitting in the buffer. Events emitted between the two
// are therefore never lost, even with no scheduling delay in between.
func TestStartCapturesEventsEmittedImmediately(t *testing.T) {
	db := testDB(t)
	shopID, err := db.CreateShop(&store.Shop{Name: "S", ClientID: "c", ClientSecret: "s", UserID: "1", IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	var chatID int64
	err = db.InTx(func(tx *store.Tx) error {
		chatID, err = tx.CreateChat(&store.Chat{
			ShopID:      shopID,
			RemoteID:    "r1",
			ProductURL:  "https://www.avito.ru/items/555",
			ListingData: []byte(`{"id": 555, "title": "Chair"}`),
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	s := NewService(db, zap.NewNop())
	stop := s.Start(context.Background(), b)

	b.Emit(bus.KindChatUpserted, syncpkg.ChatUpserted{ChatID: chatID, ShopID: shopID, RemoteID: "r1", Created: true})
	stop()

	l, err := db.GetListingByRemoteID("555")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil {
		t.Fatal("listing not captured from bus event")
	}
	if l.Title != "Chair" {
		t.Errorf("title = %q, want Chair", l.Title)
	}
}
