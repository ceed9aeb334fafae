package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/cardano-forge/txbuilder/backend/fixed"
)

// validTestAddrBech32 is a valid bech32 base address (payment + staking key
// hashes both present) used across builder tests.
var validTestAddrBech32 = func() string {
	var raw [57]byte
	raw[0] = 0x00
	raw[1] = 0xAA
	raw[29] = 0xBB
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		return ""
	}
	return addr.String()
}()

func testBuilderAddress(t *testing.T) common.Address {
	t.Helper()
	addr, err := common.NewAddress(validTestAddrBech32)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func addBuilderUtxo(fc *fixed.FixedChainContext, addr common.Address, lovelace uint64, txHashByte byte, index uint32) common.Utxo {
	var txHash common.Blake2b256
	txHash[0] = txHashByte
	input := shelley.ShelleyTransactionInput{TxId: txHash, OutputIndex: index}
	output := babbage.BabbageTransactionOutput{
		OutputAddress: addr,
		OutputAmount:  mary.MaryTransactionOutputValue{Amount: lovelace},
	}
	utxo := common.Utxo{Id: input, Output: &output}
	fc.AddUtxo(addr, utxo)
	return utxo
}

func TestBuilderSimpleTransfer(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInputAddress(addr).
		AddOutput(payment, nil, false, false).
		SetTTL(50_000_000)

	tb, err := b.Build(&addr)
	if err != nil {
		t.Fatal(err)
	}
	if tb.body.TxFee == 0 {
		t.Error("expected non-zero fee")
	}
	if len(tb.body.TxOutputs) < 1 {
		t.Error("expected at least one output")
	}
}

func TestBuilderSimpleTransferCbor(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInputAddress(addr).
		AddOutput(payment, nil, false, false).
		SetTTL(50_000_000)

	tb, err := b.Build(&addr)
	if err != nil {
		t.Fatal(err)
	}
	bodyCbor, err := tb.Cbor()
	if err != nil {
		t.Fatal(err)
	}
	if len(bodyCbor) == 0 {
		t.Error("expected non-empty body cbor")
	}
}

func TestBuilderInsufficientFunds(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	addBuilderUtxo(cc, addr, 1_000_000, 0x01, 0)

	payment := NewPayment(addr, 100_000_000)
	b := NewBuilder(cc).
		AddInputAddress(addr).
		AddOutput(payment, nil, false, false)

	if _, err := b.Build(&addr); err == nil {
		t.Error("expected insufficient funds error")
	}
}

func TestBuilderPreselectedInputs(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	utxo := addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInput(utxo).
		AddOutput(payment, nil, false, false)

	tb, err := b.Build(&addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(tb.body.TxOutputs) < 1 {
		t.Error("expected at least one output")
	}
}

func TestBuilderExcludedInputOverlapFails(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	utxo := addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInput(utxo).
		AddExcludedInput(utxo).
		AddOutput(payment, nil, false, false)

	if _, err := b.Build(&addr); err == nil {
		t.Error("expected overlap error between inputs and excluded inputs")
	}
}

func TestBuilderBuildAndSign(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	w := NewExternalWallet(addr)
	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInputAddress(addr).
		AddOutput(payment, nil, false, false)

	// ExternalWallet cannot sign; this exercises the error path of
	// BuildAndSign rather than a full round trip.
	if _, err := b.BuildAndSign([]Wallet{w}, &addr); err == nil {
		t.Error("expected signing error from a watch-only wallet")
	}
}

func TestBuilderNoChangeAddressUsesEstimatedFee(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	utxo := addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddInput(utxo).
		AddOutput(payment, nil, false, false)

	tb, err := b.Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	maxFee, err := cc.MaxTxFee()
	if err != nil {
		t.Fatal(err)
	}
	if tb.body.TxFee == 0 || tb.body.TxFee >= maxFee {
		t.Errorf("expected a tight estimated fee below the pessimistic max_tx_fee %d, got %d", maxFee, tb.body.TxFee)
	}
	if len(tb.body.TxOutputs) != 1 {
		t.Errorf("expected no change output without a change address, got %d outputs", len(tb.body.TxOutputs))
	}
}

func TestBuilderAddScriptInputCommonNativeScriptIncludedInWitnessSet(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	addBuilderUtxo(cc, addr, 10_000_000, 0x01, 0)

	var scriptAddrRaw [29]byte
	scriptAddrRaw[0] = 0x70 // type 7 = script address, network 0
	scriptAddr, err := common.NewAddressFromBytes(scriptAddrRaw[:])
	if err != nil {
		t.Fatal(err)
	}
	var scriptTxHash common.Blake2b256
	scriptTxHash[0] = 0x02
	scriptUtxo := common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: scriptTxHash, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: scriptAddr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: 5_000_000},
		},
	}
	cc.AddUtxo(scriptAddr, scriptUtxo)

	ns, err := NewNativeScriptNofK(1, []NativeScript{NewNativeScriptPubkey(common.Blake2b224{})})
	if err != nil {
		t.Fatal(err)
	}
	commonScript, err := ns.ToCommon()
	if err != nil {
		t.Fatal(err)
	}

	payment := NewPayment(addr, 2_000_000)
	b := NewBuilder(cc).
		AddScriptInput(scriptUtxo, commonScript, nil, Redeemer{Tag: common.RedeemerTagSpend}).
		AddInputAddress(addr).
		AddOutput(payment, nil, false, false)

	tb, err := b.Build(&addr)
	if err != nil {
		t.Fatal(err)
	}
	ws := tb.WitnessSet()
	if ws.WsNativeScripts == nil || len(ws.WsNativeScripts.Items()) != 1 {
		t.Error("expected the common.NativeScript witness to appear in the assembled witness set")
	}
}

func TestBuilderWitnessSetEmpty(t *testing.T) {
	tb := &TransactionBody{}
	ws := tb.WitnessSet()
	if ws.WsPlutusV1Scripts != nil || ws.WsNativeScripts != nil || ws.WsPlutusData != nil {
		t.Error("expected an empty witness set for a body with no scripts or datums")
	}
}

func TestBuilderAuxiliaryDataHash(t *testing.T) {
	aux := &AuxiliaryData{Metadata: map[uint64]any{
		674: map[string]any{"msg": "hello"},
	}}
	hash, err := aux.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if hash == (common.Blake2b256{}) {
		t.Error("expected non-zero auxiliary data hash")
	}
}

func TestBuilderAuxiliaryDataUnsupportedValue(t *testing.T) {
	aux := &AuxiliaryData{Metadata: map[uint64]any{1: struct{ X int }{X: 1}}}
	if _, err := aux.Cbor(); err == nil {
		t.Error("expected an error for an unsupported metadata value type")
	}
}
