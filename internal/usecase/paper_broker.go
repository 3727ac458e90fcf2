package usecase

// PaperBroker simulates market-order fills against a virtual cash balance.
// Commission and slippage are charged as fractions of notional on each side.
// It never talks to a real venue.
type PaperBroker struct {
	commissionPct float64
	slippagePct   float64
}

func NewPaperBroker(commissionPct, slippagePct float64) *PaperBroker {
	if commissionPct < 0 {
		commissionPct = 0
	}
	if slippagePct < 0 {
		slippagePct = 0
	}
	return &PaperBroker{commissionPct: commissionPct, slippagePct: slippagePct}
}

// FeeRate is the total charge per side as a fraction of notional.
func (b *PaperBroker) FeeRate() float64 {
	return b.commissionPct + b.slippagePct
}

// Fill is the result of one simulated market order.
type Fill struct {
	Shares   int
	Price    float64
	Notional float64
	Fees     float64
}

// Fill simulates a whole-share market order at the given price. A buy costs
// Notional+Fees; a sell credits Notional-Fees.
func (b *PaperBroker) Fill(shares int, price float64) Fill {
	notional := float64(shares) * price
	return Fill{
		Shares:   shares,
		Price:    price,
		Notional: notional,
		Fees:     notional * b.FeeRate(),
	}
}
