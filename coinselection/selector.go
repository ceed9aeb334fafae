// Package coinselection implements pluggable UTxO selection strategies.
package coinselection

import (
	"errors"
	"math/big"
	"math/rand"
	"sort"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// ErrUTxOSelection is returned when a Selector cannot cover the requested
// amount from the given pool.
var ErrUTxOSelection = errors.New("utxo selector: insufficient funds in pool")

// RequestedAsset is one (policy, asset-name, quantity) requirement a
// Selector must help satisfy, alongside the coin requirement passed
// separately. Keeping this as a flat slice (rather than a MultiAsset)
// avoids an import cycle back to the root package, which owns the Value type.
type RequestedAsset struct {
	PolicyID common.Blake2b224
	Name     []byte
	Quantity *big.Int
}

// Requested is the amount a Selector must cover: a coin floor plus zero or
// more asset requirements.
type Requested struct {
	Coin   uint64
	Assets []RequestedAsset
}

// Selector picks UTxOs from pool that together cover requested, returning
// the selected UTxOs. It must not mutate pool. Returns ErrUTxOSelection when
// the pool cannot cover the request; the Selection Driver tries the next
// registered Selector on that error (spec.md 4.4).
type Selector interface {
	Select(pool []common.Utxo, requested Requested) ([]common.Utxo, error)
}

func utxoCoin(u common.Utxo) uint64 {
	amt := u.Output.Amount()
	if amt == nil {
		return 0
	}
	return amt.Uint64()
}

func utxoHasAssets(u common.Utxo) bool {
	assets := u.Output.Assets()
	return assets != nil
}

func utxoAssetQty(u common.Utxo, policyID common.Blake2b224, name []byte) *big.Int {
	assets := u.Output.Assets()
	if assets == nil {
		return big.NewInt(0)
	}
	if qty := assets.Asset(policyID, name); qty != nil {
		return qty
	}
	return big.NewInt(0)
}

func remainingAfter(requested Requested, selected []common.Utxo) Requested {
	remaining := Requested{Coin: requested.Coin}
	for _, u := range selected {
		c := utxoCoin(u)
		if remaining.Coin <= c {
			remaining.Coin = 0
		} else {
			remaining.Coin -= c
		}
	}
	for _, ra := range requested.Assets {
		need := new(big.Int).Set(ra.Quantity)
		for _, u := range selected {
			have := utxoAssetQty(u, ra.PolicyID, ra.Name)
			need.Sub(need, have)
			if need.Sign() <= 0 {
				break
			}
		}
		if need.Sign() > 0 {
			remaining.Assets = append(remaining.Assets, RequestedAsset{PolicyID: ra.PolicyID, Name: ra.Name, Quantity: need})
		}
	}
	return remaining
}

func isSatisfied(remaining Requested) bool {
	if remaining.Coin > 0 {
		return false
	}
	for _, ra := range remaining.Assets {
		if ra.Quantity.Sign() > 0 {
			return false
		}
	}
	return true
}

// LargestFirst selects UTxOs in descending order of lovelace amount,
// ADA-only UTxOs before asset-bearing ones, stopping as soon as the request
// is covered. It is grounded in the teacher's selectCoins: a single greedy
// pass over a pre-sorted pool with saturating subtraction.
type LargestFirst struct{}

// Select implements Selector.
func (LargestFirst) Select(pool []common.Utxo, requested Requested) ([]common.Utxo, error) {
	sorted := make([]common.Utxo, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool {
		iAssets, jAssets := utxoHasAssets(sorted[i]), utxoHasAssets(sorted[j])
		if iAssets != jAssets {
			return !iAssets
		}
		return utxoCoin(sorted[i]) > utxoCoin(sorted[j])
	})

	var selected []common.Utxo
	for _, u := range sorted {
		selected = append(selected, u)
		if isSatisfied(remainingAfter(requested, selected)) {
			return selected, nil
		}
	}
	return nil, ErrUTxOSelection
}

// RandomImproveMultiAsset draws UTxOs from the pool at random, without
// replacement, until the selected set covers the requested coin and every
// requested asset, and fails with ErrUTxOSelection when the pool runs out
// first. It has no CIP-2 improvement phase toward a target above the request
// and no final largest-first pass: the first covering random draw is
// returned as is.
type RandomImproveMultiAsset struct {
	// Rand supplies randomness; if nil, each Select call uses a fresh
	// rand.Rand seeded with 1, so the draw order is the same on every call.
	Rand *rand.Rand
}

// Select implements Selector.
func (s RandomImproveMultiAsset) Select(pool []common.Utxo, requested Requested) ([]common.Utxo, error) {
	r := s.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1)) //nolint:gosec // selection order, not a security boundary
	}

	remainingPool := make([]common.Utxo, len(pool))
	copy(remainingPool, pool)

	var selected []common.Utxo
	for {
		remaining := remainingAfter(requested, selected)
		if isSatisfied(remaining) {
			return selected, nil
		}
		if len(remainingPool) == 0 {
			break
		}

		idx := r.Intn(len(remainingPool))
		candidate := remainingPool[idx]
		remainingPool = append(remainingPool[:idx], remainingPool[idx+1:]...)
		selected = append(selected, candidate)
	}

	if isSatisfied(remainingAfter(requested, selected)) {
		return selected, nil
	}
	return nil, ErrUTxOSelection
}
