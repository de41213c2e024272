package valuation

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RawListing is an untyped listing record as delivered by a scraper or a
// historical database row.  Field names vary by source; the normalizer maps
// known aliases onto the canonical MarketListing shape.
type RawListing map[string]interface{}

// Field alias precedence tables.  The first non-empty alias wins; order is
// fixed so that normalization is deterministic across sources.
var (
	priceAliases   = []string{"price", "listing_price", "listingPrice", "asking_price", "askingPrice", "amount"}
	mileageAliases = []string{"mileage", "miles", "odometer"}
	sourceAliases  = []string{"source", "site", "marketplace", "provider"}
	titleAliases   = []string{"titleStatus", "title_status", "title"}
	vinAliases     = []string{"vin", "VIN"}
	urlAliases     = []string{"url", "link", "listing_url", "listingUrl"}
	dealerAliases  = []string{"dealerName", "dealer", "dealer_name"}
	cpoAliases     = []string{"isCpo", "is_cpo", "cpo", "certified"}
	fetchedAliases = []string{"fetchedAt", "fetched_at", "scraped_at"}
)

// Normalizer converts heterogeneous raw listing records into canonical
// MarketListing values.  It holds no state and is safe for concurrent use.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts one raw record into a MarketListing.  The second return
// value is false when the record carries no usable positive price; such
// records are rejected rather than raised, since a single malformed listing
// must not halt the pipeline.
func (n *Normalizer) Normalize(raw RawListing) (MarketListing, bool) {
	price, ok := firstPrice(raw)
	if !ok || price <= 0 {
		return MarketListing{}, false
	}

	listing := MarketListing{
		Price:       price,
		Source:      normalizeSource(firstString(raw, sourceAliases)),
		TitleStatus: firstString(raw, titleAliases),
		VIN:         strings.ToUpper(strings.TrimSpace(firstString(raw, vinAliases))),
		URL:         firstString(raw, urlAliases),
		DealerName:  firstString(raw, dealerAliases),
		IsCPO:       firstBool(raw, cpoAliases),
	}

	if miles, ok := firstInt(raw, mileageAliases); ok && miles >= 0 {
		listing.Mileage = &miles
	}
	if ts, ok := firstTime(raw, fetchedAliases); ok {
		listing.FetchedAt = ts
	}

	return listing, true
}

// NormalizeAll converts a batch of raw records, silently omitting rejects.
// The relative order of surviving listings is preserved.
func (n *Normalizer) NormalizeAll(raws []RawListing) []MarketListing {
	out := make([]MarketListing, 0, len(raws))
	for _, raw := range raws {
		if listing, ok := n.Normalize(raw); ok {
			out = append(out, listing)
		}
	}
	return out
}

// normalizeSource lowercases and trims a source name so that trust-table
// lookups are alias-insensitive.  Empty sources become "unknown".
func normalizeSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

func firstPrice(raw RawListing) (float64, bool) {
	for _, key := range priceAliases {
		v, exists := raw[key]
		if !exists {
			continue
		}
		if price, ok := toFloat(v); ok {
			return price, true
		}
	}
	return 0, false
}

func firstString(raw RawListing, aliases []string) string {
	for _, key := range aliases {
		if v, exists := raw[key]; exists {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstInt(raw RawListing, aliases []string) (int, bool) {
	for _, key := range aliases {
		if v, exists := raw[key]; exists {
			if f, ok := toFloat(v); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

func firstBool(raw RawListing, aliases []string) bool {
	for _, key := range aliases {
		if v, exists := raw[key]; exists {
			switch b := v.(type) {
			case bool:
				return b
			case string:
				return strings.EqualFold(b, "true") || b == "1"
			}
		}
	}
	return false
}

func firstTime(raw RawListing, aliases []string) (time.Time, bool) {
	for _, key := range aliases {
		if v, exists := raw[key]; exists {
			switch t := v.(type) {
			case time.Time:
				return t, true
			case string:
				if parsed, err := time.Parse(time.RFC3339, t); err == nil {
					return parsed, true
				}
			}
		}
	}
	return time.Time{}, false
}

// toFloat coerces the numeric shapes that occur in scraped data: native
// numbers, json.Number, and formatted price strings like "$12,500".
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		cleaned := strings.TrimSpace(n)
		cleaned = strings.TrimPrefix(cleaned, "$")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
