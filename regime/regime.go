// Package regime maps broad‑market indicator readings to a bull / bear /
// neutral classification.  The engine gates its trading rules on the result:
// bear parks everything in the cash equivalent, neutral holds, bull trades.
package regime

import (
	"math"

	"github.com/evdnx/govr/types"
)

// Thresholds are the tunable boundaries of the classifier.
type Thresholds struct {
	BearVolIndexRise float64 // vol index rising beyond this contributes to bear
	BullVolIndexDrop float64 // vol index falling beyond this (negative) required for bull
	SentimentBear    float64 // sentiment ratio above this contributes to bear
	SentimentBull    float64 // sentiment ratio below this required for bull
	RSIBear          float64 // RSI below this contributes to bear
	RSIBull          float64 // RSI above this required for bull
}

// Classifier is a pure function of one step's MarketState.
type Classifier struct {
	t Thresholds
}

func New(t Thresholds) *Classifier { return &Classifier{t: t} }

// Classify applies the regime rules:
//
//   - bear when short SMA < long SMA, or the volatility index is rising
//     beyond the threshold while sentiment is elevated and RSI depressed;
//   - bull only on the full conjunction of an up‑trend, a falling volatility
//     index, subdued sentiment and recovered RSI;
//   - neutral otherwise.
//
// NaN readings never satisfy a condition, so missing data degrades towards
// neutral rather than flapping between regimes.
func (c *Classifier) Classify(m types.MarketState) types.Regime {
	trendDown := lt(m.SMAShort, m.SMALong)
	trendUp := lt(m.SMALong, m.SMAShort)

	panicLeg := gt(m.VolIndexChange, c.t.BearVolIndexRise) &&
		gt(m.SentimentRatio, c.t.SentimentBear) &&
		lt(m.RSI, c.t.RSIBear)
	if trendDown || panicLeg {
		return types.Bear
	}

	if trendUp &&
		lt(m.VolIndexChange, c.t.BullVolIndexDrop) &&
		lt(m.SentimentRatio, c.t.SentimentBull) &&
		gt(m.RSI, c.t.RSIBull) {
		return types.Bull
	}
	return types.Neutral
}

// lt / gt are NaN‑safe comparisons: any NaN operand yields false.
func lt(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return a < b
}

func gt(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return a > b
}
