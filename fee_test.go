package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/cardano-forge/txbuilder/backend"
)

func TestLinearFeeNoExUnits(t *testing.T) {
	pp := backend.ProtocolParameters{MinFeeCoefficient: 44, MinFeeConstant: 155_381}
	fee := LinearFee(pp, 300, 0, 0)
	if fee != 300*44+155_381 {
		t.Errorf("unexpected fee %d", fee)
	}
}

func TestLinearFeeWithExUnits(t *testing.T) {
	pp := backend.ProtocolParameters{MinFeeCoefficient: 44, MinFeeConstant: 155_381, PriceMem: 0.0577, PriceStep: 0.0000721}
	fee := LinearFee(pp, 300, 1000, 2000)
	if fee <= int64(300*44+155_381) {
		t.Error("expected ex-unit fee to add to the base linear fee")
	}
}

func TestEstimateFeeGrowsWithWitnessCount(t *testing.T) {
	pp := backend.ProtocolParameters{MinFeeCoefficient: 44, MinFeeConstant: 155_381}
	body := conway.ConwayTransactionBody{
		TxInputs: conway.NewConwayTransactionInputSet([]shelley.ShelleyTransactionInput{
			{OutputIndex: 0},
		}),
	}
	one, err := EstimateFee(pp, body, conway.ConwayTransactionWitnessSet{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	two, err := EstimateFee(pp, body, conway.ConwayTransactionWitnessSet{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if two <= one {
		t.Errorf("expected fee to grow with witness count, got %d then %d", one, two)
	}
}

func TestEstimateFeeExceedsMaxTxSize(t *testing.T) {
	pp := backend.ProtocolParameters{MinFeeCoefficient: 44, MinFeeConstant: 155_381, MaxTxSize: 10}
	body := conway.ConwayTransactionBody{
		TxInputs: conway.NewConwayTransactionInputSet([]shelley.ShelleyTransactionInput{
			{OutputIndex: 0},
		}),
	}
	if _, err := EstimateFee(pp, body, conway.ConwayTransactionWitnessSet{}, 1); err == nil {
		t.Error("expected max_tx_size error")
	}
}

func TestComputeScriptDataHashEmpty(t *testing.T) {
	hash, err := ComputeScriptDataHash(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hash != nil {
		t.Error("expected nil script data hash when there are no redeemers or datums")
	}
}

func TestComputeScriptDataHashWithRedeemer(t *testing.T) {
	redeemers := map[common.RedeemerKey]common.RedeemerValue{
		{Tag: common.RedeemerTagSpend, Index: 0}: {ExUnits: common.ExUnits{Memory: 100, Steps: 200}},
	}
	hash, err := ComputeScriptDataHash(redeemers, nil, map[string][]int64{"PlutusV2": {1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if hash == nil {
		t.Fatal("expected a non-nil script data hash")
	}
	if *hash == (common.Blake2b256{}) {
		t.Error("expected a non-zero hash")
	}
}

func TestComputeScriptDataHashUnsupportedCostModelLanguage(t *testing.T) {
	redeemers := map[common.RedeemerKey]common.RedeemerValue{
		{Tag: common.RedeemerTagSpend, Index: 0}: {},
	}
	if _, err := ComputeScriptDataHash(redeemers, nil, map[string][]int64{"PlutusV9": {1}}); err == nil {
		t.Error("expected an error for an unsupported cost model language")
	}
}

func TestFakeVkeyWitnessCountDedupesInputsAndNativeScripts(t *testing.T) {
	var keyHash common.Blake2b224
	keyHash[0] = 0xAA
	var raw [29]byte
	raw[0] = 0x61
	copy(raw[1:], keyHash[:])
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	var txHash common.Blake2b256
	utxo := common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: txHash, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: addr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: 1},
		},
	}
	ns := NewNativeScriptPubkey(keyHash)
	count := fakeVkeyWitnessCount([]common.Utxo{utxo}, []NativeScript{ns}, nil)
	if count != 1 {
		t.Errorf("expected the native script's key hash to dedupe with the input's own, got count %d", count)
	}
}

func TestFakeVkeyWitnessCountAtLeastOne(t *testing.T) {
	if count := fakeVkeyWitnessCount(nil, nil, nil); count != 1 {
		t.Errorf("expected a floor of 1, got %d", count)
	}
}
