// Package listings persists marketplace listings discovered during chat sync.
package listings

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/bus"
	"github.com/osagaming/avicrm/internal/store"
	syncpkg "github.com/osagaming/avicrm/internal/sync"
)

// Ordered strategies for pulling the listing id out of a product URL.
var itemIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/items/(\d+)`),
	regexp.MustCompile(`(?i)[?&]item[_-]?id=(\d+)`),
	regexp.MustCompile(`[_-](\d{5,})(?:\?|$|/)`),
	regexp.MustCompile(`/(\d{5,})(?:\?|$)`),
}

var longDigitRun = regexp.MustCompile(`\d{7,}`)

// ExtractItemID pulls the marketplace listing id out of a product URL.
// Returns "" when no pattern matches.
func ExtractItemID(productURL string) string {
	if productURL == "" {
		return ""
	}
	for _, p := range itemIDPatterns {
		if m := p.FindStringSubmatch(productURL); m != nil {
			return m[1]
		}
	}
	// Last resort: the longest run of 7+ digits anywhere in the URL.
	var best string
	for _, m := range longDigitRun.FindAllString(productURL, -1) {
		if len(m) > len(best) {
			best = m
		}
	}
	return best
}

var priceDigits = regexp.MustCompile(`\d+`)

// ParsePrice extracts an integer price from a formatted price string like
// "15 000 ₽".
func ParsePrice(priceString string) int64 {
	digits := ""
	for _, m := range priceDigits.FindAllString(priceString, -1) {
		digits += m
	}
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Service captures listings from synced chats into the listings table.
type Service struct {
	db     *store.DB
	logger *zap.Logger
}

// NewService creates a listing capture service.
func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// CaptureFromChat upserts the listing a chat is about, identified by the
// descriptor's id or one extracted from the product URL. Chats without any
// listing information are a no-op.
func (s *Service) CaptureFromChat(chat *store.Chat) error {
	if chat == nil || (len(chat.ListingData) == 0 && chat.ProductURL == "") {
		return nil
	}

	var desc map[string]any
	if len(chat.ListingData) > 0 {
		if err := json.Unmarshal(chat.ListingData, &desc); err != nil {
			s.logger.Warn("chat carries unparseable listing data",
				zap.Int64("chat", chat.ID), zap.Error(err))
			desc = nil
		}
	}

	url := chat.ProductURL
	if url == "" {
		url, _ = desc["url"].(string)
	}

	remoteID := descString(desc, "id")
	if remoteID == "" {
		remoteID = ExtractItemID(url)
	}
	if remoteID == "" {
		return nil
	}

	listing := store.Listing{
		RemoteID: remoteID,
		Title:    descString(desc, "title"),
		URL:      url,
		Status:   descString(desc, "status"),
		Data:     chat.ListingData,
	}
	if ps := descString(desc, "price_string"); ps != "" {
		listing.Price = ParsePrice(ps)
	} else if p, ok := desc["price"].(float64); ok {
		listing.Price = int64(p)
	}
	return s.db.UpsertListing(&listing)
}

// Start subscribes to chat upsert events and captures their listings in a
// background goroutine. The subscription is registered before Start returns,
// so events published right after are not missed. The returned stop function
// drains events still buffered, then waits for the goroutine to exit.
func (s *Service) Start(ctx context.Context, b *bus.Bus) (stop func()) {
	events, unsub := b.Subscribe(bus.KindChatUpserted, 64)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				s.drain(events)
				return
			case evt := <-events:
				s.handle(evt)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Service) drain(events <-chan bus.Event) {
	for {
		select {
		case evt := <-events:
			s.handle(evt)
		default:
			return
		}
	}
}

func (s *Service) handle(evt bus.Event) {
	up, ok := evt.Payload.(syncpkg.ChatUpserted)
	if !ok {
		return
	}
	chat, err := s.db.GetChat(up.ChatID)
	if err != nil || chat == nil {
		return
	}
	if err := s.CaptureFromChat(chat); err != nil {
		s.logger.Warn("listing capture failed",
			zap.Int64("chat", up.ChatID), zap.Error(err))
	}
}

func descString(desc map[string]any, key string) string {
	switch v := desc[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
