package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
)

// Value is a semiring over (coin, multi-asset): lovelace plus zero or more
// native-token quantities keyed by policy and asset name. It is the unit the
// Change Packer and Selection Driver both operate on.
type Value struct {
	Coin   uint64
	Assets *common.MultiAsset[common.MultiAssetTypeOutput]
}

// NewValue creates a Value with the given coin amount and assets.
func NewValue(coin uint64, assets *common.MultiAsset[common.MultiAssetTypeOutput]) Value {
	return Value{Coin: coin, Assets: assets}
}

// NewSimpleValue creates a Value with only lovelace and no assets.
func NewSimpleValue(coin uint64) Value {
	return Value{Coin: coin}
}

// Add returns the component-wise sum of v and other. Coin overflow is an error.
func (v Value) Add(other Value) (Value, error) {
	sum := v.Coin + other.Coin
	if sum < v.Coin {
		return Value{}, fmt.Errorf("%w: coin overflow", ErrInvalidTransaction)
	}
	result := Value{Coin: sum}
	switch {
	case v.Assets != nil && other.Assets != nil:
		result.Assets = CloneMultiAsset(v.Assets)
		result.Assets.Add(other.Assets)
	case v.Assets != nil:
		result.Assets = CloneMultiAsset(v.Assets)
	case other.Assets != nil:
		result.Assets = CloneMultiAsset(other.Assets)
	}
	return result, nil
}

// Sub returns v minus other, component-wise. A negative coin result, or an
// asset quantity that would go negative, is an error: this method is for
// spending a known-sufficient value, not for computing unfulfilled demand
// (selection.go keeps its own saturating subtraction for that).
func (v Value) Sub(other Value) (Value, error) {
	if other.Coin > v.Coin {
		return Value{}, fmt.Errorf("%w: coin underflow", ErrInvalidTransaction)
	}
	result := Value{Coin: v.Coin - other.Coin}
	if v.Assets != nil {
		result.Assets = CloneMultiAsset(v.Assets)
		if other.Assets != nil {
			if err := SubMultiAsset(result.Assets, other.Assets); err != nil {
				return Value{}, err
			}
		}
	} else if other.Assets != nil && !MultiAssetIsEmpty(other.Assets) {
		return Value{}, fmt.Errorf("%w: asset underflow, no assets to subtract from", ErrInvalidTransaction)
	}
	return result, nil
}

// SubMultiAsset subtracts other from m in place. Returns an error if any
// resulting quantity would go negative.
func SubMultiAsset(m *common.MultiAsset[common.MultiAssetTypeOutput], other *common.MultiAsset[common.MultiAssetTypeOutput]) error {
	if other == nil {
		return nil
	}
	for _, policyID := range other.Policies() {
		for _, name := range other.Assets(policyID) {
			otherQty := other.Asset(policyID, name)
			if otherQty == nil {
				continue
			}
			myQty := m.Asset(policyID, name)
			if myQty == nil || myQty.Cmp(otherQty) < 0 {
				return fmt.Errorf("%w: asset underflow for policy %s", ErrInvalidTransaction, policyID)
			}
		}
	}
	negData := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput)
	for _, policyID := range other.Policies() {
		assetMap := make(map[cbor.ByteString]common.MultiAssetTypeOutput)
		for _, name := range other.Assets(policyID) {
			qty := other.Asset(policyID, name)
			if qty == nil {
				continue
			}
			assetMap[cbor.NewByteString(name)] = new(big.Int).Neg(qty)
		}
		negData[policyID] = assetMap
	}
	negAssets := common.NewMultiAsset[common.MultiAssetTypeOutput](negData)
	m.Add(&negAssets)
	return nil
}

// Lt implements the spec's strict partial order: a < b iff a.Coin < b.Coin
// AND every asset quantity in a is strictly less than the corresponding
// quantity in b (an entry missing from b is treated as 0). This is strictly
// stronger than !(b.GreaterOrEqual(a)). CalcChange uses it to test that the
// requested outputs plus fee are covered by the provided inputs.
func (v Value) Lt(other Value) bool {
	if !(v.Coin < other.Coin) {
		return false
	}
	policies := make(map[common.Blake2b224]struct{})
	if v.Assets != nil {
		for _, p := range v.Assets.Policies() {
			policies[p] = struct{}{}
		}
	}
	if other.Assets != nil {
		for _, p := range other.Assets.Policies() {
			policies[p] = struct{}{}
		}
	}
	for policyID := range policies {
		names := make(map[string]struct{})
		if v.Assets != nil {
			for _, n := range v.Assets.Assets(policyID) {
				names[string(n)] = struct{}{}
			}
		}
		if other.Assets != nil {
			for _, n := range other.Assets.Assets(policyID) {
				names[string(n)] = struct{}{}
			}
		}
		for name := range names {
			av := assetQty(v.Assets, policyID, []byte(name))
			bv := assetQty(other.Assets, policyID, []byte(name))
			if av.Cmp(bv) >= 0 {
				return false
			}
		}
	}
	return true
}

// GreaterOrEqual reports whether v has at least as much coin and at least as
// much of every asset present in other. Extra assets or coin in v beyond what
// other needs are allowed.
func (v Value) GreaterOrEqual(other Value) bool {
	if v.Coin < other.Coin {
		return false
	}
	if other.Assets == nil {
		return true
	}
	for _, policyID := range other.Assets.Policies() {
		for _, name := range other.Assets.Assets(policyID) {
			want := other.Assets.Asset(policyID, name)
			if want == nil || want.Sign() <= 0 {
				continue
			}
			have := assetQty(v.Assets, policyID, name)
			if have.Cmp(want) < 0 {
				return false
			}
		}
	}
	return true
}

// AssetTriple is one (policy, asset-name, quantity) entry, as seen by Filter.
type AssetTriple struct {
	PolicyID  common.Blake2b224
	AssetName []byte
	Quantity  *big.Int
}

// Filter returns a new Value whose multi-asset component keeps only the
// (policy, name, qty) triples for which predicate returns true. The coin
// component is unchanged. This is how zero-quantity entries are dropped
// before a Value is ever serialized into an output (spec.md 4.1).
func (v Value) Filter(predicate func(AssetTriple) bool) Value {
	result := Value{Coin: v.Coin}
	if v.Assets == nil {
		return result
	}
	data := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput)
	for _, policyID := range v.Assets.Policies() {
		for _, name := range v.Assets.Assets(policyID) {
			qty := v.Assets.Asset(policyID, name)
			if qty == nil {
				continue
			}
			if !predicate(AssetTriple{PolicyID: policyID, AssetName: name, Quantity: qty}) {
				continue
			}
			if _, ok := data[policyID]; !ok {
				data[policyID] = make(map[cbor.ByteString]common.MultiAssetTypeOutput)
			}
			data[policyID][cbor.NewByteString(name)] = new(big.Int).Set(qty)
		}
	}
	if len(data) > 0 {
		ma := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
		result.Assets = &ma
	}
	return result
}

// FilterPositive drops every asset entry with a non-positive quantity. It is
// the filter applied to change, mint, and unfulfilled-demand values before
// they are ever turned into an output or a selection target.
func (v Value) FilterPositive() Value {
	return v.Filter(func(t AssetTriple) bool { return t.Quantity.Sign() > 0 })
}

// IsEmpty reports whether v has zero coin and no positive asset quantities.
func (v Value) IsEmpty() bool {
	return v.Coin == 0 && !v.HasAssets()
}

// HasAssets reports whether v carries any strictly-positive asset quantity.
func (v Value) HasAssets() bool {
	return v.Assets != nil && !MultiAssetIsEmpty(v.Assets)
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	result := Value{Coin: v.Coin}
	if v.Assets != nil {
		result.Assets = CloneMultiAsset(v.Assets)
	}
	return result
}

// ToMaryValue converts v to the ledger-native output value type, cloning
// assets so the returned value shares no backing storage with v.
func (v Value) ToMaryValue() mary.MaryTransactionOutputValue {
	return mary.MaryTransactionOutputValue{
		Amount: v.Coin,
		Assets: CloneMultiAsset(v.Assets),
	}
}

// ValueFromMaryValue converts a ledger-native output value to a Value,
// cloning assets so the result shares no backing storage with mv.
func ValueFromMaryValue(mv mary.MaryTransactionOutputValue) Value {
	return Value{
		Coin:   mv.Amount,
		Assets: CloneMultiAsset(mv.Assets),
	}
}

// CloneMultiAsset deep-copies a MultiAsset. A nil input yields a nil output.
func CloneMultiAsset(m *common.MultiAsset[common.MultiAssetTypeOutput]) *common.MultiAsset[common.MultiAssetTypeOutput] {
	if m == nil {
		return nil
	}
	policies := m.Policies()
	data := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput, len(policies))
	for _, policyID := range policies {
		names := m.Assets(policyID)
		assetMap := make(map[cbor.ByteString]common.MultiAssetTypeOutput, len(names))
		for _, name := range names {
			assetMap[cbor.NewByteString(name)] = new(big.Int).Set(m.Asset(policyID, name))
		}
		data[policyID] = assetMap
	}
	result := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	return &result
}

// MultiAssetIsEmpty reports whether m is nil or has no strictly-positive
// asset quantity.
func MultiAssetIsEmpty(m *common.MultiAsset[common.MultiAssetTypeOutput]) bool {
	if m == nil {
		return true
	}
	for _, policyID := range m.Policies() {
		for _, name := range m.Assets(policyID) {
			if qty := m.Asset(policyID, name); qty != nil && qty.Sign() > 0 {
				return false
			}
		}
	}
	return true
}

func assetQty(m *common.MultiAsset[common.MultiAssetTypeOutput], policyID common.Blake2b224, name []byte) *big.Int {
	if m == nil {
		return big.NewInt(0)
	}
	if qty := m.Asset(policyID, name); qty != nil {
		return qty
	}
	return big.NewInt(0)
}
