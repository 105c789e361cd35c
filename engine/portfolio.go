package engine

import "math"

// Position is one open holding.  CostBasis is the volume‑weighted average
// entry price.
type Position struct {
	Shares    float64
	CostBasis float64
}

// Portfolio owns all position state: free cash, per‑instrument positions,
// the cash‑equivalent holding and the realized cost accumulator.  It is
// mutated only by the engine that owns it.
type Portfolio struct {
	cash       float64
	positions  map[string]Position
	cashSymbol string
	cashShares float64
	cashPrice  float64
	yieldRate  float64
	costs      float64
}

func NewPortfolio(initialCash float64, cashSymbol string, cashPrice, yieldRate float64) *Portfolio {
	return &Portfolio{
		cash:       initialCash,
		positions:  make(map[string]Position),
		cashSymbol: cashSymbol,
		cashPrice:  cashPrice,
		yieldRate:  yieldRate,
	}
}

func (p *Portfolio) Cash() float64  { return p.cash }
func (p *Portfolio) Costs() float64 { return p.costs }

// Shares returns the open share count for an instrument (the cash symbol
// included).
func (p *Portfolio) Shares(symbol string) float64 {
	if symbol == p.cashSymbol {
		return p.cashShares
	}
	return p.positions[symbol].Shares
}

// CostBasis returns the volume‑weighted average entry price.
func (p *Portfolio) CostBasis(symbol string) float64 {
	return p.positions[symbol].CostBasis
}

// TotalValue marks the portfolio to market.  Instruments without a price are
// valued at zero for the step (the caller carries last known closes forward,
// so this only happens before any data arrives).
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	value := p.cash + p.cashShares*p.cashPrice
	for sym, pos := range p.positions {
		value += pos.Shares * prices[sym]
	}
	return value
}

// AccrueYield applies one step of the cash‑equivalent yield.
func (p *Portfolio) AccrueYield() {
	p.cashShares *= 1 + p.yieldRate
}

// buy spends the given notional on an instrument at the given price, charging
// costRate on the notional.  Returns the shares bought, or 0 when cash cannot
// cover notional plus cost – a buy never drives cash negative.
func (p *Portfolio) buy(symbol string, notional, price, costRate float64) float64 {
	if notional <= 0 || price <= 0 {
		return 0
	}
	cost := notional * costRate
	if p.cash < notional+cost {
		return 0
	}
	shares := notional / price
	p.cash -= notional + cost
	p.costs += cost

	pos := p.positions[symbol]
	totalShares := pos.Shares + shares
	pos.CostBasis = (pos.CostBasis*pos.Shares + notional) / totalShares
	pos.Shares = totalShares
	p.positions[symbol] = pos
	return shares
}

// sell disposes up to the held share count at the given price, net of cost,
// and returns the shares actually sold.  A full exit clears the cost basis.
func (p *Portfolio) sell(symbol string, shares, price, costRate float64) float64 {
	pos := p.positions[symbol]
	if shares <= 0 || pos.Shares <= 0 || price <= 0 {
		return 0
	}
	shares = math.Min(shares, pos.Shares)
	proceeds := shares * price
	cost := proceeds * costRate
	p.cash += proceeds - cost
	p.costs += cost

	pos.Shares -= shares
	if pos.Shares <= 1e-12 {
		pos = Position{}
	}
	p.positions[symbol] = pos
	return shares
}

// park converts all free cash into cash‑equivalent shares, net of cost,
// honouring the minimum lot (one cash‑equivalent share).  Returns the shares
// bought.
func (p *Portfolio) park(costRate float64) float64 {
	if p.cash < p.cashPrice {
		return 0
	}
	notional := p.cash / (1 + costRate)
	cost := p.cash - notional
	shares := notional / p.cashPrice
	p.cashShares += shares
	p.costs += cost
	p.cash = 0
	return shares
}

// unpark redeems just enough cash‑equivalent shares to raise `need` of free
// cash, net of cost, and returns the net cash actually raised.  Redeeming
// only the shortfall avoids paying the parking cost twice on the remainder.
func (p *Portfolio) unpark(need, costRate float64) float64 {
	if p.cashShares <= 0 || need <= 0 {
		return 0
	}
	gross := need / (1 - costRate)
	shares := math.Min(gross/p.cashPrice, p.cashShares)
	proceeds := shares * p.cashPrice
	cost := proceeds * costRate
	p.cash += proceeds - cost
	p.costs += cost
	p.cashShares -= shares
	return proceeds - cost
}

// Allocation returns the instrument→fraction map at the supplied prices.
// Free cash is not an allocation; fractions are non‑negative and, after
// normalization by the caller, sum to at most one.
func (p *Portfolio) Allocation(prices map[string]float64) map[string]float64 {
	total := p.TotalValue(prices)
	alloc := make(map[string]float64)
	if total <= 0 {
		return alloc
	}
	for sym, pos := range p.positions {
		if pos.Shares > 0 {
			alloc[sym] = pos.Shares * prices[sym] / total
		}
	}
	if p.cashShares > 0 {
		alloc[p.cashSymbol] = p.cashShares * p.cashPrice / total
	}
	return alloc
}
