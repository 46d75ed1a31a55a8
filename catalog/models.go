package catalog

import "cardswap/trade"

// Card captures the catalog data exposed through the API.
type Card struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Element  string `json:"element,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
	Series   string `json:"series,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Summary converts a card into the coordinator's enrichment view.
func (c Card) Summary() trade.CardSummary {
	return trade.CardSummary{
		Code:     c.Code,
		Name:     c.Name,
		Element:  c.Element,
		Rarity:   c.Rarity,
		Series:   c.Series,
		ImageURL: c.ImageURL,
	}
}

// searchIndex implements fuzzy.Source over lowercased card names.
type searchIndex struct {
	cards []Card
	names []string
}

func (s *searchIndex) Len() int { return len(s.cards) }

func (s *searchIndex) String(i int) string { return s.names[i] }
