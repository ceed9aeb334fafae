package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/cardano-forge/txbuilder/backend"
)

func testChangeAddress(t *testing.T) common.Address {
	t.Helper()
	var raw [29]byte
	raw[0] = 0x61
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func testProtocolParams() backend.ProtocolParameters {
	return backend.ProtocolParameters{
		CoinsPerUtxoByte: "4310",
		MaxValSize:       "5000",
	}
}

func testInputUtxo(addr common.Address, lovelace uint64) common.Utxo {
	var txHash common.Blake2b256
	txHash[0] = 0x09
	return common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: txHash, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: addr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: lovelace},
		},
	}
}

func TestCalcChangeSimpleAda(t *testing.T) {
	addr := testChangeAddress(t)
	inputs := []common.Utxo{testInputUtxo(addr, 10_000_000)}
	outputs := []babbage.BabbageTransactionOutput{NewBabbageOutputSimple(addr, 2_000_000)}

	outs, err := CalcChange(200_000, inputs, outputs, nil, addr, testProtocolParams(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected a single ada-only change output, got %d", len(outs))
	}
	if outs[0].OutputAmount.Amount != 10_000_000-2_000_000-200_000 {
		t.Errorf("unexpected change amount %d", outs[0].OutputAmount.Amount)
	}
}

func TestCalcChangeInsufficientFunds(t *testing.T) {
	addr := testChangeAddress(t)
	inputs := []common.Utxo{testInputUtxo(addr, 1_000_000)}
	outputs := []babbage.BabbageTransactionOutput{NewBabbageOutputSimple(addr, 2_000_000)}

	if _, err := CalcChange(200_000, inputs, outputs, nil, addr, testProtocolParams(), true); err == nil {
		t.Error("expected insufficient funds error")
	}
}

func TestCalcChangeWithAssets(t *testing.T) {
	addr := testChangeAddress(t)
	in := testInputUtxo(addr, 10_000_000)
	in.Output.(*babbage.BabbageTransactionOutput).OutputAmount.Assets = testMultiAsset(1, "token", 100)
	inputs := []common.Utxo{in}
	outputs := []babbage.BabbageTransactionOutput{NewBabbageOutputSimple(addr, 2_000_000)}

	outs, err := CalcChange(200_000, inputs, outputs, nil, addr, testProtocolParams(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected one change output bucket, got %d", len(outs))
	}
	qty := outs[0].OutputAmount.Assets.Asset(testPolicyID(1), []byte("token"))
	if qty == nil || qty.Int64() != 100 {
		t.Errorf("expected 100 tokens in change, got %v", qty)
	}
}

func TestPackTokensForChangeSingleBucket(t *testing.T) {
	addr := testChangeAddress(t)
	change := Value{Assets: testMultiAsset(1, "token", 50)}

	buckets, err := PackTokensForChange(addr, change, 5000, 4310)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected a single bucket for a small asset set, got %d", len(buckets))
	}
}

func TestPackTokensForChangeNilAssets(t *testing.T) {
	addr := testChangeAddress(t)
	buckets, err := PackTokensForChange(addr, Value{}, 5000, 4310)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 0 {
		t.Errorf("expected no buckets for an asset-free value, got %d", len(buckets))
	}
}

func TestPackTokensForChangeOversizedSingleAssetFails(t *testing.T) {
	addr := testChangeAddress(t)
	change := Value{Assets: testMultiAsset(1, "token", 50)}

	if _, err := PackTokensForChange(addr, change, 1, 4310); err == nil {
		t.Error("expected an error when a single asset cannot fit under max_val_size")
	}
}
