package restock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"persediaan/backend/internal/cache"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/logger"
)

const (
	// leadDays is how many days of cover an item should keep before a
	// new BAST Masuk can realistically arrive.
	leadDays = 14.0
	// maxCoverDays stands in for "no recent usage" so the value stays finite.
	maxCoverDays = 999.0
)

// Source is the read side the engine needs; store.Reader satisfies it.
type Source interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	ListLedgerSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error)
}

type Engine struct {
	source     Source
	cache      cache.RestockCache
	cacheTTL   time.Duration
	windowDays int
	logger     *logger.Logger
	now        func() time.Time
}

func NewEngine(source Source, cacheStore cache.RestockCache, cacheTTL time.Duration, windowDays int) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopRestockCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	if windowDays < 1 {
		windowDays = 30
	}
	return &Engine{
		source:     source,
		cache:      cacheStore,
		cacheTTL:   cacheTTL,
		windowDays: windowDays,
		logger:     logger.Nop(),
		now:        time.Now,
	}
}

// WithLogger reports cache failures to l. Suggestions are still served
// from the source when the cache is down.
func (e *Engine) WithLogger(l *logger.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Suggest lists items that should be restocked, most urgent first.
func (e *Engine) Suggest(ctx context.Context) (domain.RestockSuggestionResponse, error) {
	now := e.now().UTC()
	cacheKey := buildCacheKey(e.windowDays, now)
	cached, ok, err := e.cache.Get(ctx, cacheKey)
	switch {
	case err != nil:
		e.logger.Warn(e.logger.WithField(ctx, "error", err.Error()), "restock cache read failed")
	case ok:
		return *cached, nil
	}

	items, err := e.source.ListItems(ctx)
	if err != nil {
		return domain.RestockSuggestionResponse{}, fmt.Errorf("list items: %w", err)
	}
	since := now.AddDate(0, 0, -e.windowDays)
	entries, err := e.source.ListLedgerSince(ctx, since)
	if err != nil {
		return domain.RestockSuggestionResponse{}, fmt.Errorf("list ledger since %s: %w", since.Format(time.DateOnly), err)
	}

	resp := domain.RestockSuggestionResponse{
		GeneratedAt: now,
		WindowDays:  e.windowDays,
		Suggestions: Compute(items, entries, e.windowDays),
	}
	if err := e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL); err != nil {
		e.logger.Warn(e.logger.WithField(ctx, "error", err.Error()), "restock cache write failed")
	}
	return resp, nil
}

// Invalidate drops the cached suggestions after stock moved.
func (e *Engine) Invalidate(ctx context.Context) error {
	return e.cache.Delete(ctx, buildCacheKey(e.windowDays, e.now().UTC()))
}

// Compute derives suggestions from current stock and the outbound usage
// recorded in entries. Reversed handovers cancel their original usage.
func Compute(items []domain.Item, entries []domain.LedgerEntry, windowDays int) []domain.RestockSuggestion {
	usage := make(map[string]int, len(items))
	for _, entry := range entries {
		if entry.SourceType != domain.SourceOutbound {
			continue
		}
		if entry.Correction {
			usage[entry.ItemID] -= entry.QtyIn
			continue
		}
		usage[entry.ItemID] += entry.QtyOut
	}

	suggestions := make([]domain.RestockSuggestion, 0)
	for _, item := range items {
		used := max(usage[item.ID], 0)
		dailyUsage := float64(used) / float64(windowDays)

		cover := maxCoverDays
		if dailyUsage > 0 {
			cover = math.Min(float64(item.Stock)/dailyUsage, maxCoverDays)
		}

		belowMin := item.MinStock > 0 && item.Stock <= item.MinStock
		lowCover := dailyUsage > 0 && cover < leadDays
		if !belowMin && !lowCover {
			continue
		}

		target := max(2*item.MinStock, int(math.Ceil(dailyUsage*float64(windowDays))))
		suggested := target - item.Stock
		if suggested < 1 {
			continue
		}

		shortfall := 0.0
		if item.MinStock > 0 {
			shortfall = clamp(float64(item.MinStock-item.Stock)/float64(item.MinStock), 0, 1)
		}
		urgency := clamp(1-cover/leadDays, 0, 1)

		suggestions = append(suggestions, domain.RestockSuggestion{
			Item:         domain.ItemRef{ID: item.ID, Code: item.Code, Name: item.Name, Unit: item.Unit},
			Stock:        item.Stock,
			MinStock:     item.MinStock,
			DailyUsage:   round2(dailyUsage),
			DaysOfCover:  round2(cover),
			SuggestedQty: suggested,
			ReasonCode:   deriveReason(item.Stock, shortfall, urgency),
			Priority:     round2(0.55*shortfall + 0.45*urgency),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Priority != suggestions[j].Priority {
			return suggestions[i].Priority > suggestions[j].Priority
		}
		return suggestions[i].Item.Code < suggestions[j].Item.Code
	})
	return suggestions
}

func deriveReason(stock int, shortfall float64, urgency float64) string {
	if stock == 0 {
		return "out_of_stock"
	}

	type reasonWeight struct {
		code  string
		value float64
	}
	reasons := []reasonWeight{
		{code: "below_min_stock", value: shortfall},
		{code: "low_days_of_cover", value: urgency},
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func buildCacheKey(windowDays int, now time.Time) string {
	parts := []string{
		fmt.Sprintf("w:%d", windowDays),
		"d:" + now.Format(time.DateOnly),
	}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "persediaan:restock:" + hex.EncodeToString(hash[:])
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
