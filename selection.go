package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/cardano-forge/txbuilder/backend"
	"github.com/cardano-forge/txbuilder/coinselection"
)

// Selector is the interface the Selection Driver tries, in order, against
// the candidate pool. It is a thin re-export of coinselection.Selector so
// callers can register selectors without importing the coinselection
// package directly.
type Selector = coinselection.Selector

// DefaultSelectors is the selector chain used when a Builder is not given
// one explicitly: randomized-improve first, then largest-first as a
// deterministic fallback for requests randomized-improve can't satisfy,
// mirroring pycardano's default utxo_selectors list.
func DefaultSelectors() []Selector {
	return []Selector{coinselection.RandomImproveMultiAsset{}, coinselection.LargestFirst{}}
}

func utxoRef(u common.Utxo) string {
	return fmt.Sprintf("%x#%d", u.Id.Id().Bytes(), u.Id.Index())
}

// trimToRequested restricts selected's multi-asset component to the
// policies and asset names that actually appear in requested: excess assets
// already held by preselected inputs come back as change and don't need to
// participate in the unfulfilled-amount arithmetic (spec.md 4.4).
func trimToRequested(selected Value, requested Value) Value {
	trimmed := Value{Coin: selected.Coin}
	if requested.Assets == nil || selected.Assets == nil {
		return trimmed
	}
	wanted := make(map[common.Blake2b224]map[string]struct{})
	for _, policyID := range requested.Assets.Policies() {
		names := make(map[string]struct{})
		for _, name := range requested.Assets.Assets(policyID) {
			names[string(name)] = struct{}{}
		}
		wanted[policyID] = names
	}

	data := make(map[common.Blake2b224]map[string]int64)
	for _, policyID := range selected.Assets.Policies() {
		names, ok := wanted[policyID]
		if !ok {
			continue
		}
		for _, name := range selected.Assets.Assets(policyID) {
			if _, ok := names[string(name)]; !ok {
				continue
			}
			qty := selected.Assets.Asset(policyID, name)
			if qty == nil {
				continue
			}
			addToStringMap(data, policyID, string(name), qty.Int64())
		}
	}
	trimmed.Assets = multiAssetFromStringMap(data)
	return trimmed
}

// subtractAssetsSaturating subtracts other from m in place, clamping every
// resulting quantity at zero rather than erroring on underflow: unlike
// value.go's SubMultiAsset (which is used once the exact amounts owed are
// known and treats underflow as a bug), the selection driver only needs to
// know how much of requested is still outstanding after what's already
// selected, so an asset fully covered (or over-covered) by selected simply
// drops to zero rather than failing the computation.
func subtractAssetsSaturating(m *common.MultiAsset[common.MultiAssetTypeOutput], other *common.MultiAsset[common.MultiAssetTypeOutput]) {
	if m == nil || other == nil {
		return
	}
	negData := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput)
	for _, policyID := range other.Policies() {
		assetMap := make(map[cbor.ByteString]common.MultiAssetTypeOutput)
		for _, name := range other.Assets(policyID) {
			otherQty := other.Asset(policyID, name)
			if otherQty == nil {
				continue
			}
			myQty := m.Asset(policyID, name)
			if myQty == nil {
				continue
			}
			// Clamp the delta so the resulting quantity never goes below
			// zero: subtracting min(myQty, otherQty) instead of otherQty.
			delta := otherQty
			if myQty.Cmp(otherQty) < 0 {
				delta = myQty
			}
			assetMap[cbor.NewByteString(name)] = new(big.Int).Neg(delta)
		}
		if len(assetMap) > 0 {
			negData[policyID] = assetMap
		}
	}
	if len(negData) == 0 {
		return
	}
	negAssets := common.NewMultiAsset[common.MultiAssetTypeOutput](negData)
	m.Add(&negAssets)
}

// unfulfilledAmount returns requested minus the requested-relevant portion
// of selected, clamped at zero on the coin side and with non-positive asset
// quantities filtered out, per spec.md 4.4.
func unfulfilledAmount(requested Value, selected Value) Value {
	trimmed := trimToRequested(selected, requested)
	result := Value{}
	if requested.Coin > trimmed.Coin {
		result.Coin = requested.Coin - trimmed.Coin
	}
	if requested.Assets != nil {
		result.Assets = CloneMultiAsset(requested.Assets)
		if trimmed.Assets != nil {
			subtractAssetsSaturating(result.Assets, trimmed.Assets)
		}
	}
	return result.FilterPositive()
}

// valueToRequested converts a Value into the coinselection package's flat
// requirement shape.
func valueToRequested(v Value) coinselection.Requested {
	req := coinselection.Requested{Coin: v.Coin}
	if v.Assets != nil {
		for _, policyID := range v.Assets.Policies() {
			for _, name := range v.Assets.Assets(policyID) {
				qty := v.Assets.Asset(policyID, name)
				if qty == nil || qty.Sign() <= 0 {
					continue
				}
				req.Assets = append(req.Assets, coinselection.RequestedAsset{
					PolicyID: policyID,
					Name:     append([]byte(nil), name...),
					Quantity: qty,
				})
			}
		}
	}
	return req
}

// SelectUtxos drives coin selection for an unfulfilled amount against a
// candidate pool, trying each selector in order and returning the first
// success. It fails with ErrUTxOSelection when every selector fails,
// matching pycardano's build(): "All UTxO selectors failed."
func SelectUtxos(pool []common.Utxo, unfulfilled Value, selectors []Selector) ([]common.Utxo, error) {
	requested := valueToRequested(unfulfilled)
	for _, sel := range selectors {
		selected, err := sel.Select(pool, requested)
		if err == nil {
			return selected, nil
		}
	}
	return nil, fmt.Errorf("%w: all utxo selectors failed", ErrUTxOSelection)
}

// CandidatePool queries cc for the UTxOs at every address in inputAddresses,
// excluding any UTxO already present in excluded (already-selected or
// explicitly-excluded references), matching pycardano's additional_utxo_pool
// construction in build().
func CandidatePool(cc backend.ChainContext, inputAddresses []common.Address, excluded map[string]struct{}) ([]common.Utxo, error) {
	var pool []common.Utxo
	seen := make(map[string]struct{})
	for _, addr := range inputAddresses {
		utxos, err := cc.Utxos(addr)
		if err != nil {
			return nil, fmt.Errorf("query utxos for input address: %w", err)
		}
		for _, u := range utxos {
			ref := utxoRef(u)
			if _, skip := excluded[ref]; skip {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			pool = append(pool, u)
		}
	}
	return pool, nil
}
