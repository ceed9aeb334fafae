package txbuilder

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"

	"github.com/cardano-forge/txbuilder/backend"
)

// fakeVkeySize and fakeSignatureSize are the constant Ed25519
// verification-key and signature sizes used for fee estimation: a 32-byte
// key plus a 64-byte signature. This
// mirrors pycardano's FAKE_VKEY/FAKE_TX_SIGNATURE constants, which exist
// because the real signatures aren't known until after the fee is fixed.
const (
	fakeVkeySize      = 32
	fakeSignatureSize = 64
)

// LinearFee computes the minimum transaction fee under the linear formula:
// size*coefficient + constant, plus the Plutus execution-unit fee
// (priceMem*mem + priceStep*steps) rounded up, matching pycardano's fee()
// and the teacher's estimateFee.
func LinearFee(pp backend.ProtocolParameters, txSize int, totalMem int64, totalSteps int64) int64 {
	f := int64(txSize)*pp.MinFeeCoefficient + pp.MinFeeConstant
	if totalMem != 0 || totalSteps != 0 {
		exUnitFee := int64(math.Ceil(pp.PriceMem*float64(totalMem) + pp.PriceStep*float64(totalSteps)))
		f += exUnitFee
	}
	return f
}

// EstimateFee builds a fake-witnessed transaction from body and ws (every
// real signature replaced by fakeVkeySize+fakeSignatureSize bytes of zero
// padding, one per required signer), measures its CBOR size, and returns the
// resulting linear fee. Builder.build calls it once per build, after the
// upper-bound change pass, with the count from fakeVkeyWitnessCount.
func EstimateFee(pp backend.ProtocolParameters, body conway.ConwayTransactionBody, ws conway.ConwayTransactionWitnessSet, vkeyWitnessCount int) (int64, error) {
	fakeWitnesses := make([]common.VkeyWitness, vkeyWitnessCount)
	for i := range fakeWitnesses {
		fakeWitnesses[i] = common.VkeyWitness{
			Vkey:      make([]byte, fakeVkeySize),
			Signature: make([]byte, fakeSignatureSize),
		}
	}
	ws.VkeyWitnesses = cbor.NewSetType(fakeWitnesses, true)

	var totalMem, totalSteps int64
	for _, rv := range ws.WsRedeemers.Redeemers {
		totalMem += rv.ExUnits.Memory
		totalSteps += rv.ExUnits.Steps
	}

	tx := conway.ConwayTransaction{
		Body:       body,
		WitnessSet: ws,
		TxIsValid:  true,
	}
	txBytes, err := cbor.Encode(&tx)
	if err != nil {
		return 0, fmt.Errorf("encode fake tx: %w", err)
	}
	if pp.MaxTxSize > 0 && len(txBytes) > pp.MaxTxSize {
		return 0, fmt.Errorf("%w: transaction size (%d) exceeds max_tx_size (%d)", ErrInvalidTransaction, len(txBytes), pp.MaxTxSize)
	}
	return LinearFee(pp, len(txBytes), totalMem, totalSteps), nil
}

// ComputeScriptDataHash computes the Alonzo-era script data hash over a
// transaction's redeemers, datums, and the cost-model language views they
// exercise. Returns nil when both redeemers and datums are empty, since a
// transaction with no Plutus involvement carries no script data hash at all.
func ComputeScriptDataHash(
	redeemers map[common.RedeemerKey]common.RedeemerValue,
	datums []common.Datum,
	costModels map[string][]int64,
) (*common.Blake2b256, error) {
	if len(redeemers) == 0 && len(datums) == 0 {
		return nil, nil
	}

	var redeemerBytes []byte
	var err error
	if len(redeemers) > 0 {
		redeemerBytes, err = cbor.Encode(redeemers)
	} else {
		redeemerBytes, err = cbor.Encode(map[common.RedeemerKey]common.RedeemerValue{})
	}
	if err != nil {
		return nil, fmt.Errorf("encode redeemers: %w", err)
	}

	var datumBytes []byte
	if len(datums) > 0 {
		datumBytes, err = cbor.Encode(datums)
	} else {
		datumBytes, err = cbor.Encode([]common.Datum{})
	}
	if err != nil {
		return nil, fmt.Errorf("encode datums: %w", err)
	}

	usedVersions := make(map[uint]struct{})
	numericCostModels := make(map[uint][]int64)
	for lang, costs := range costModels {
		var version uint
		switch lang {
		case "PlutusV1":
			version = 0
		case "PlutusV2":
			version = 1
		case "PlutusV3":
			version = 2
		default:
			return nil, fmt.Errorf("%w: unsupported cost model language %q", ErrInvalidArgument, lang)
		}
		usedVersions[version] = struct{}{}
		numericCostModels[version] = costs
	}
	var costModelBytes []byte
	if len(usedVersions) > 0 {
		costModelBytes, err = common.EncodeLangViews(usedVersions, numericCostModels)
	} else {
		costModelBytes, err = cbor.Encode(map[uint][]int64{})
	}
	if err != nil {
		return nil, fmt.Errorf("encode cost models: %w", err)
	}

	combined := make([]byte, 0, len(redeemerBytes)+len(datumBytes)+len(costModelBytes))
	combined = append(combined, redeemerBytes...)
	combined = append(combined, datumBytes...)
	combined = append(combined, costModelBytes...)

	hash := common.Blake2b256Hash(combined)
	return &hash, nil
}

// inputVkeyHashes returns the set of payment key hashes that must sign
// because they own one of inputs, matching pycardano's _input_vkey_hashes.
func inputVkeyHashes(inputs []common.Utxo) map[common.Blake2b224]struct{} {
	hashes := make(map[common.Blake2b224]struct{})
	for _, in := range inputs {
		if h := in.Output.Address().PaymentKeyHash(); h != (common.Blake2b224{}) {
			hashes[h] = struct{}{}
		}
	}
	return hashes
}

// fakeVkeyWitnessCount returns the number of distinct signers a fee estimate
// must account for: one per input-owning key, one per pubkey-hash reachable
// from the attached native scripts and one per required signer, matching
// pycardano's _build_fake_vkey_witnesses (input hashes unioned with
// native-script hashes). It returns 1 when there are no such hashes.
func fakeVkeyWitnessCount(inputs []common.Utxo, nativeScripts []NativeScript, requiredSigners []common.Blake2b224) int {
	hashes := inputVkeyHashes(inputs)
	for _, ns := range nativeScripts {
		for _, h := range ns.WalkPubkeyHashes() {
			hashes[h] = struct{}{}
		}
	}
	for _, h := range requiredSigners {
		hashes[h] = struct{}{}
	}
	if len(hashes) == 0 {
		return 1
	}
	return len(hashes)
}
