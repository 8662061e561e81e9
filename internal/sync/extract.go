package sync

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/market"
)

// ListingContext is the outcome of listing extraction for one chat payload.
// Empty ProductURL / nil Data mean the value was absent, never an error.
type ListingContext struct {
	ProductURL string
	Data       json.RawMessage
}

// descriptorStrategy probes one known payload shape for the listing
// descriptor. Strategies run in order and the first hit wins.
type descriptorStrategy struct {
	name  string
	probe func(payload map[string]any) any
}

// The newer protocol revision nests the descriptor under context.value; the
// older one used context.item. Top-level keys only apply when the payload has
// no context object at all.
var descriptorStrategies = []descriptorStrategy{
	{"context.value", contextField("value")},
	{"context.item", contextField("item")},
	{"context.listing", contextField("listing")},
	{"context.ad", contextField("ad")},
	{"item", topField("item")},
	{"listing", topField("listing")},
	{"ad", topField("ad")},
}

func contextField(key string) func(map[string]any) any {
	return func(payload map[string]any) any {
		ctx, ok := payload["context"].(map[string]any)
		if !ok {
			return nil
		}
		return nonEmpty(ctx[key])
	}
}

func topField(key string) func(map[string]any) any {
	return func(payload map[string]any) any {
		if _, hasContext := payload["context"].(map[string]any); hasContext {
			return nil
		}
		return nonEmpty(payload[key])
	}
}

func nonEmpty(v any) any {
	switch d := v.(type) {
	case map[string]any:
		if len(d) == 0 {
			return nil
		}
	case string:
		if d == "" {
			return nil
		}
	case nil:
		return nil
	}
	return v
}

// urlKeys are the descriptor fields that may carry the product URL, in
// priority order.
var urlKeys = []string{"url", "link", "href", "value", "uri"}

// flatAliases are checked on the raw payload when the descriptor yields no URL.
var flatAliases = []string{"item_url", "listing_url", "ad_url", "product_url"}

// Extractor derives a chat's product URL and raw listing descriptor from the
// marketplace's inconsistently shaped chat payloads.
type Extractor struct {
	origin string
	logger *zap.Logger
}

// NewExtractor creates an extractor. origin is the marketplace's public root
// used to absolutize relative URLs and to template id-only descriptors.
func NewExtractor(origin string, logger *zap.Logger) *Extractor {
	return &Extractor{origin: strings.TrimRight(origin, "/"), logger: logger}
}

// Extract runs the strategy list over one chat payload. It is read-only and
// total: it always returns, with absence expressed as zero values.
func (e *Extractor) Extract(payload map[string]any, shopSlug string) ListingContext {
	var out ListingContext

	var descriptor any
	for _, s := range descriptorStrategies {
		if d := s.probe(payload); d != nil {
			descriptor = d
			break
		}
	}

	switch d := descriptor.(type) {
	case map[string]any:
		if data, err := json.Marshal(d); err == nil {
			out.Data = data
		}
		out.ProductURL = e.descriptorURL(d, shopSlug)
	case string:
		if strings.HasPrefix(d, "http") {
			out.ProductURL = d
		} else if isDigits(d) {
			out.ProductURL = e.itemURL(shopSlug, d)
		}
	}

	if out.ProductURL == "" {
		for _, key := range flatAliases {
			if s, ok := payload[key].(string); ok && s != "" {
				out.ProductURL = e.normalizeURL(s, shopSlug)
				break
			}
		}
	}
	return out
}

// ExtractWithDetail runs Extract and, when either output is still missing,
// escalates to a chat-detail fetch and fills only the missing pieces.
// Escalation failures are logged and swallowed.
func (e *Extractor) ExtractWithDetail(ctx context.Context, client market.Client, userID, chatID string, payload map[string]any, shopSlug string) ListingContext {
	out := e.Extract(payload, shopSlug)
	if (out.ProductURL != "" && len(out.Data) > 0) || client == nil {
		return out
	}

	detail, err := client.GetChat(ctx, userID, chatID)
	if err != nil {
		e.logger.Warn("chat detail fetch for listing extraction failed",
			zap.String("chat", chatID), zap.Error(err))
		return out
	}

	found := e.Extract(detail, shopSlug)
	if out.ProductURL == "" {
		out.ProductURL = found.ProductURL
	}
	if len(out.Data) == 0 {
		out.Data = found.Data
	}
	return out
}

// descriptorURL derives the product URL from a descriptor mapping: the first
// string among the url keys, else a URL templated from the id field.
func (e *Extractor) descriptorURL(d map[string]any, shopSlug string) string {
	for _, key := range urlKeys {
		if s, ok := d[key].(string); ok && s != "" {
			return e.normalizeURL(s, shopSlug)
		}
	}
	if id := scalarString(d["id"]); id != "" {
		return e.itemURL(shopSlug, id)
	}
	return ""
}

// normalizeURL absolutizes relative paths and re-templates bare ids.
func (e *Extractor) normalizeURL(u, shopSlug string) string {
	if strings.HasPrefix(u, "/") {
		return e.origin + u
	}
	if !strings.HasPrefix(u, "http") {
		return e.itemURL(shopSlug, u)
	}
	return u
}

func (e *Extractor) itemURL(shopSlug, id string) string {
	if shopSlug != "" {
		return e.origin + "/" + shopSlug + "/items/" + id
	}
	return e.origin + "/items/" + id
}

// ShopSlug returns the shop's path segment used in templated item URLs:
// the last path component of the configured shop URL.
func ShopSlug(shopURL string) string {
	if shopURL == "" {
		return ""
	}
	parts := strings.Split(shopURL, "/")
	return parts[len(parts)-1]
}
