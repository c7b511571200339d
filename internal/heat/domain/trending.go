package domain

// TrendingTier names the query stage that produced a trending result
type TrendingTier string

const (
	TierPrimary  TrendingTier = "primary"
	TierFallback TrendingTier = "fallback"
	TierEmpty    TrendingTier = "empty"
)

// TrendingResult is an ordered page of items annotated with the tier that satisfied it
type TrendingResult struct {
	Items []Item       `json:"items"`
	Tier  TrendingTier `json:"tier"`
	Count int          `json:"count"`
}

// NewTrendingResult builds a result, tagging an empty page as TierEmpty.
func NewTrendingResult(items []Item, tier TrendingTier) *TrendingResult {
	if len(items) == 0 {
		return &TrendingResult{Items: []Item{}, Tier: TierEmpty, Count: 0}
	}
	return &TrendingResult{Items: items, Tier: tier, Count: len(items)}
}
