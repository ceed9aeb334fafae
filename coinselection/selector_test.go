package coinselection

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
)

func testUtxo(addr common.Address, lovelace uint64, txHashByte byte) common.Utxo {
	var txHash common.Blake2b256
	txHash[0] = txHashByte
	return common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: txHash, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: addr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: lovelace},
		},
	}
}

func testUtxoWithAsset(addr common.Address, lovelace uint64, txHashByte byte, policyByte byte, name string, qty int64) common.Utxo {
	u := testUtxo(addr, lovelace, txHashByte)
	data := map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput{}
	var pid common.Blake2b224
	pid[0] = policyByte
	data[pid] = map[cbor.ByteString]common.MultiAssetTypeOutput{
		cbor.NewByteString([]byte(name)): big.NewInt(qty),
	}
	ma := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	u.Output.(*babbage.BabbageTransactionOutput).OutputAmount.Assets = &ma
	return u
}

func testAddr(t *testing.T) common.Address {
	t.Helper()
	var raw [29]byte
	raw[0] = 0x61
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestLargestFirstSelectsFewestAdaOnlyUtxos(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{
		testUtxo(addr, 2_000_000, 0x01),
		testUtxo(addr, 10_000_000, 0x02),
		testUtxo(addr, 5_000_000, 0x03),
	}
	selected, err := LargestFirst{}.Select(pool, Requested{Coin: 8_000_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 {
		t.Fatalf("expected a single largest utxo to cover the request, got %d", len(selected))
	}
}

func TestLargestFirstPrefersAdaOnlyOverAssetBearing(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{
		testUtxoWithAsset(addr, 20_000_000, 0x01, 0x01, "token", 1),
		testUtxo(addr, 3_000_000, 0x02),
	}
	selected, err := LargestFirst{}.Select(pool, Requested{Coin: 2_000_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 || selected[0].Output.Assets() != nil {
		t.Error("expected the ada-only utxo to be preferred even though it holds less lovelace")
	}
}

func TestLargestFirstInsufficientFunds(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{testUtxo(addr, 1_000_000, 0x01)}
	if _, err := (LargestFirst{}).Select(pool, Requested{Coin: 10_000_000}); err == nil {
		t.Error("expected insufficient funds error")
	}
}

func TestRandomImproveMultiAssetCoversCoinRequest(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{
		testUtxo(addr, 2_000_000, 0x01),
		testUtxo(addr, 4_000_000, 0x02),
		testUtxo(addr, 6_000_000, 0x03),
	}
	sel := RandomImproveMultiAsset{Rand: rand.New(rand.NewSource(42))}
	selected, err := sel.Select(pool, Requested{Coin: 5_000_000})
	if err != nil {
		t.Fatal(err)
	}
	var total uint64
	for _, u := range selected {
		total += u.Output.Amount().Uint64()
	}
	if total < 5_000_000 {
		t.Errorf("expected selected utxos to cover the requested coin, got %d", total)
	}
}

func TestRandomImproveMultiAssetCoversAssetRequest(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{
		testUtxoWithAsset(addr, 2_000_000, 0x01, 0x01, "token", 50),
		testUtxo(addr, 2_000_000, 0x02),
	}
	var pid common.Blake2b224
	pid[0] = 0x01
	sel := RandomImproveMultiAsset{Rand: rand.New(rand.NewSource(7))}
	requested := Requested{Coin: 1_000_000, Assets: []RequestedAsset{
		{PolicyID: pid, Name: []byte("token"), Quantity: big.NewInt(20)},
	}}
	selected, err := sel.Select(pool, requested)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) == 0 {
		t.Fatal("expected at least one selected utxo")
	}
}

func TestRandomImproveMultiAssetInsufficientFunds(t *testing.T) {
	addr := testAddr(t)
	pool := []common.Utxo{testUtxo(addr, 1_000_000, 0x01)}
	sel := RandomImproveMultiAsset{Rand: rand.New(rand.NewSource(1))}
	if _, err := sel.Select(pool, Requested{Coin: 100_000_000}); err == nil {
		t.Error("expected insufficient funds error")
	}
}
