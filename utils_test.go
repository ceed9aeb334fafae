package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/cardano-forge/txbuilder/backend/fixed"
)

func TestSortInputsLexicographicByTxIdThenIndex(t *testing.T) {
	var hashA, hashB common.Blake2b256
	hashA[0] = 0x01
	hashB[0] = 0x02
	inputs := []common.Utxo{
		{Id: shelley.ShelleyTransactionInput{TxId: hashB, OutputIndex: 0}},
		{Id: shelley.ShelleyTransactionInput{TxId: hashA, OutputIndex: 1}},
		{Id: shelley.ShelleyTransactionInput{TxId: hashA, OutputIndex: 0}},
	}
	sorted := SortInputs(inputs)
	if sorted[0].Id.Id() != hashA || sorted[0].Id.Index() != 0 {
		t.Errorf("expected (hashA, 0) first, got (%x, %d)", sorted[0].Id.Id().Bytes(), sorted[0].Id.Index())
	}
	if sorted[1].Id.Id() != hashA || sorted[1].Id.Index() != 1 {
		t.Errorf("expected (hashA, 1) second, got (%x, %d)", sorted[1].Id.Id().Bytes(), sorted[1].Id.Index())
	}
	if sorted[2].Id.Id() != hashB {
		t.Errorf("expected hashB last")
	}
}

func TestSortInputsDoesNotMutateInput(t *testing.T) {
	var hashA, hashB common.Blake2b256
	hashA[0] = 0x01
	hashB[0] = 0x02
	original := []common.Utxo{
		{Id: shelley.ShelleyTransactionInput{TxId: hashB, OutputIndex: 0}},
		{Id: shelley.ShelleyTransactionInput{TxId: hashA, OutputIndex: 0}},
	}
	_ = SortInputs(original)
	if original[0].Id.Id() != hashB {
		t.Error("expected SortInputs to leave the original slice order untouched")
	}
}

func TestSortUtxosAdaOnlyFirstDescending(t *testing.T) {
	addr := testBuilderAddress(t)
	cc := fixed.NewEmptyFixedChainContext()
	small := addBuilderUtxo(cc, addr, 1_000_000, 0x01, 0)
	large := addBuilderUtxo(cc, addr, 9_000_000, 0x02, 0)

	sorted := SortUtxos([]common.Utxo{small, large})
	if sorted[0].Output.Amount().Uint64() != 9_000_000 {
		t.Errorf("expected the larger ada-only utxo first, got %d", sorted[0].Output.Amount().Uint64())
	}
}
