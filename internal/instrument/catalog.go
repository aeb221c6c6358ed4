package instrument

// DefaultCatalog returns the built-in instrument set.
func DefaultCatalog() []Definition {
	return []Definition{
		{ID: "programming", Symbol: "CODE", Name: "r/programming", SignalKey: "programming", Category: CategoryTechnology, Volatility: 1.0, CategoryMultiplier: 2.0},
		{ID: "technology", Symbol: "TECH", Name: "r/technology", SignalKey: "technology", Category: CategoryTechnology, Volatility: 1.1, CategoryMultiplier: 2.0, Dividend: true},
		{ID: "gaming", Symbol: "GAME", Name: "r/gaming", SignalKey: "gaming", Category: CategoryGaming, Volatility: 1.3, CategoryMultiplier: 1.5},
		{ID: "pcgaming", Symbol: "PCGM", Name: "r/pcgaming", SignalKey: "pcgaming", Category: CategoryGaming, Volatility: 1.2, CategoryMultiplier: 1.5},
		{ID: "wallstreetbets", Symbol: "WSB", Name: "r/wallstreetbets", SignalKey: "wallstreetbets", Category: CategoryFinance, Volatility: 2.0, CategoryMultiplier: 1.8},
		{ID: "personalfinance", Symbol: "PFIN", Name: "r/personalfinance", SignalKey: "personalfinance", Category: CategoryFinance, Volatility: 0.6, CategoryMultiplier: 1.8, Dividend: true},
		{ID: "movies", Symbol: "FILM", Name: "r/movies", SignalKey: "movies", Category: CategoryEntertainment, Volatility: 1.0, CategoryMultiplier: 1.2},
		{ID: "science", Symbol: "SCI", Name: "r/science", SignalKey: "science", Category: CategoryScience, Volatility: 0.7, CategoryMultiplier: 1.6, Dividend: true},
		{ID: "space", Symbol: "ORBT", Name: "r/space", SignalKey: "space", Category: CategoryScience, Volatility: 0.9, CategoryMultiplier: 1.6},
		{ID: "nba", Symbol: "HOOP", Name: "r/nba", SignalKey: "nba", Category: CategorySports, Volatility: 1.4, CategoryMultiplier: 1.3},
		{ID: "memes", Symbol: "MEME", Name: "r/memes", SignalKey: "memes", Category: CategoryMemes, Volatility: 2.5, CategoryMultiplier: 0.8},
		{ID: "fitness", Symbol: "FIT", Name: "r/fitness", SignalKey: "fitness", Category: CategoryLifestyle, Volatility: 0.8, CategoryMultiplier: 1.1},
	}
}
