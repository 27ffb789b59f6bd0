package pagination

// Signals are the facts read off one listing page.
type Signals struct {
	PageIndex int
	// Total is the announced entry count, 0 when unknown.
	Total int
	// Candidates are 0-based page indices found in the pagination control.
	Candidates []int
}

// Strategy is one rung of the inference ladder.
type Strategy interface {
	Name() string
	// Next returns the proposed next page index.
	Next(sig Signals) (int, bool)
}

// LinkStrategy follows the pagination control: the smallest candidate past
// the current page wins.
type LinkStrategy struct{}

// Name implements Strategy.
func (LinkStrategy) Name() string { return "links" }

// Next implements Strategy.
func (LinkStrategy) Next(sig Signals) (int, bool) {
	next, found := 0, false
	for _, c := range sig.Candidates {
		if c > sig.PageIndex && (!found || c < next) {
			next, found = c, true
		}
	}
	return next, found
}

// ArithmeticStrategy synthesizes the following page when the announced total
// exceeds what the pages seen so far can hold.
type ArithmeticStrategy struct {
	PageSize int
}

// Name implements Strategy.
func (ArithmeticStrategy) Name() string { return "arithmetic" }

// Next implements Strategy.
func (a ArithmeticStrategy) Next(sig Signals) (int, bool) {
	if a.PageSize <= 0 || sig.Total <= 0 {
		return 0, false
	}
	if sig.Total > (sig.PageIndex+1)*a.PageSize {
		return sig.PageIndex + 1, true
	}
	return 0, false
}
