package txbuilder

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/cardano-forge/txbuilder/backend"
)

// valueFromUtxo reads the (coin, assets) pair carried by a UTxO's output.
func valueFromUtxo(u common.Utxo) Value {
	v := Value{}
	if amt := u.Output.Amount(); amt != nil {
		v.Coin = amt.Uint64()
	}
	if assets := u.Output.Assets(); assets != nil {
		v.Assets = CloneMultiAsset(assets)
	}
	return v
}

// maxValSize parses ProtocolParameters.MaxValSize, defaulting to the
// Babbage-era mainnet value when the field is absent or malformed.
func maxValSize(pp backend.ProtocolParameters) int {
	if pp.MaxValSize != "" {
		if v, err := strconv.Atoi(pp.MaxValSize); err == nil {
			return v
		}
	}
	return 5000
}

// CalcChange computes the change outputs owed to changeAddress given the
// selected inputs, requested outputs, mint, and fee. It mirrors pycardano's
// _calc_change: requested must be strictly less than provided (every coin
// and asset component), the zero-ADA remainder after subtracting requested
// from provided becomes change, and multi-asset change beyond a single
// max_val_size bucket is split across several outputs via PackTokensForChange.
// preciseFee controls whether the non-ADA-coverage check in the last pass
// (spec.md 4.2) is enforced; the fixpoint in Builder.build runs this
// once with preciseFee=false against the max fee, then again with
// preciseFee=true against the real fee.
func CalcChange(
	fee uint64,
	inputs []common.Utxo,
	outputs []babbage.BabbageTransactionOutput,
	mint *common.MultiAsset[common.MultiAssetTypeOutput],
	changeAddress common.Address,
	pp backend.ProtocolParameters,
	preciseFee bool,
) ([]babbage.BabbageTransactionOutput, error) {
	requested := NewSimpleValue(fee)
	for _, out := range outputs {
		v := ValueFromMaryValue(out.OutputAmount)
		sum, err := requested.Add(v)
		if err != nil {
			return nil, err
		}
		requested = sum
	}

	provided := NewSimpleValue(0)
	for _, in := range inputs {
		sum, err := provided.Add(valueFromUtxo(in))
		if err != nil {
			return nil, err
		}
		provided = sum
	}
	if mint != nil {
		provided.Assets = CloneMultiAsset(provided.Assets)
		if provided.Assets == nil {
			provided.Assets = CloneMultiAsset(mint)
		} else {
			provided.Assets.Add(mint)
		}
	}

	if !requested.Lt(provided) {
		return nil, fmt.Errorf("%w: input utxos cannot cover outputs plus fee", ErrInvalidTransaction)
	}

	change, err := provided.Sub(requested)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientUTxOBalance, err)
	}
	change = change.FilterPositive()

	if !change.HasAssets() {
		return []babbage.BabbageTransactionOutput{NewBabbageOutputSimple(changeAddress, change.Coin)}, nil
	}

	buckets, err := PackTokensForChange(changeAddress, change, maxValSize(pp), pp.CoinsPerUtxoByteValue())
	if err != nil {
		return nil, err
	}

	outs := make([]babbage.BabbageTransactionOutput, 0, len(buckets))
	remaining := change.Coin
	for i, bucket := range buckets {
		bucketValue := Value{Assets: bucket}
		last := i == len(buckets)-1
		if last {
			bucketValue.Coin = remaining
		} else {
			out := NewBabbageOutputSimple(changeAddress, 0)
			out.OutputAmount.Assets = bucket
			minLovelace, err := MinLovelacePostAlonzo(&out, pp.CoinsPerUtxoByteValue())
			if err != nil {
				return nil, err
			}
			bucketValue.Coin = uint64(minLovelace)
		}
		if preciseFee && bucketValue.Coin > remaining {
			return nil, fmt.Errorf("%w: not enough ada left to cover non-ada assets in change", ErrInsufficientUTxOBalance)
		}
		remaining -= bucketValue.Coin
		outs = append(outs, NewBabbageOutput(changeAddress, bucketValue, nil, nil))
	}
	return outs, nil
}

// PackTokensForChange splits changeEstimator's multi-asset component across
// as many outputs as needed so that no single output's CBOR-encoded value
// exceeds maxValSize, following pycardano's _pack_tokens_for_change: assets
// are walked in (policy, name) order and appended to the current bucket,
// flushing to a new bucket whenever the next asset would overflow it. An
// asset that overflows an otherwise-empty bucket on its own is an oversized
// single asset, which is reported as an invalid
// transaction rather than silently dropped (spec.md 9, Open Question).
func PackTokensForChange(
	changeAddress common.Address,
	changeEstimator Value,
	maxVal int,
	coinsPerUtxoByte int64,
) ([]*common.MultiAsset[common.MultiAssetTypeOutput], error) {
	var buckets []*common.MultiAsset[common.MultiAssetTypeOutput]
	current := make(map[common.Blake2b224]map[string]int64)

	flush := func() {
		if len(current) == 0 {
			return
		}
		buckets = append(buckets, multiAssetFromStringMap(current))
		current = make(map[common.Blake2b224]map[string]int64)
	}

	overflow := func(candidate map[common.Blake2b224]map[string]int64) (bool, error) {
		ma := multiAssetFromStringMap(candidate)
		out := NewBabbageOutputSimple(changeAddress, 0)
		out.OutputAmount.Assets = ma
		minLovelace, err := MinLovelacePostAlonzo(&out, coinsPerUtxoByte)
		if err != nil {
			return false, err
		}
		out.OutputAmount.Amount = uint64(minLovelace)
		size, err := OutputCborSize(&out)
		if err != nil {
			return false, err
		}
		return size > maxVal, nil
	}

	if changeEstimator.Assets == nil {
		return buckets, nil
	}

	for _, policyID := range changeEstimator.Assets.Policies() {
		for _, name := range changeEstimator.Assets.Assets(policyID) {
			qty := changeEstimator.Assets.Asset(policyID, name)
			if qty == nil || qty.Sign() <= 0 {
				continue
			}

			candidate := cloneStringMap(current)
			addToStringMap(candidate, policyID, string(name), qty.Int64())

			isOverflow, err := overflow(candidate)
			if err != nil {
				return nil, err
			}
			if isOverflow {
				if len(current) == 0 {
					return nil, fmt.Errorf("%w: single asset %s.%x exceeds max_val_size on its own", ErrInvalidTransaction, policyID, name)
				}
				flush()
				candidate = cloneStringMap(current)
				addToStringMap(candidate, policyID, string(name), qty.Int64())
				isOverflow, err = overflow(candidate)
				if err != nil {
					return nil, err
				}
				if isOverflow {
					return nil, fmt.Errorf("%w: single asset %s.%x exceeds max_val_size on its own", ErrInvalidTransaction, policyID, name)
				}
			}
			current = candidate
		}
	}
	flush()
	return buckets, nil
}

func cloneStringMap(m map[common.Blake2b224]map[string]int64) map[common.Blake2b224]map[string]int64 {
	out := make(map[common.Blake2b224]map[string]int64, len(m))
	for policyID, names := range m {
		inner := make(map[string]int64, len(names))
		for name, qty := range names {
			inner[name] = qty
		}
		out[policyID] = inner
	}
	return out
}

func addToStringMap(m map[common.Blake2b224]map[string]int64, policyID common.Blake2b224, name string, qty int64) {
	if _, ok := m[policyID]; !ok {
		m[policyID] = make(map[string]int64)
	}
	m[policyID][name] += qty
}

func multiAssetFromStringMap(m map[common.Blake2b224]map[string]int64) *common.MultiAsset[common.MultiAssetTypeOutput] {
	if len(m) == 0 {
		return nil
	}
	data := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput, len(m))
	for policyID, names := range m {
		assetMap := make(map[cbor.ByteString]common.MultiAssetTypeOutput, len(names))
		for name, qty := range names {
			assetMap[cbor.NewByteString([]byte(name))] = big.NewInt(qty)
		}
		data[policyID] = assetMap
	}
	result := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	return &result
}
