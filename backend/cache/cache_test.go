package cache

import (
	"testing"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"

	"github.com/cardano-forge/txbuilder/backend"
	"github.com/cardano-forge/txbuilder/backend/fixed"
)

// countingChainContext wraps a FixedChainContext and counts ProtocolParams calls.
type countingChainContext struct {
	*fixed.FixedChainContext
	protocolParamsCalls int
}

func (c *countingChainContext) ProtocolParams() (backend.ProtocolParameters, error) {
	c.protocolParamsCalls++
	return c.FixedChainContext.ProtocolParams()
}

func testCacheAddress(t *testing.T) common.Address {
	t.Helper()
	var raw [29]byte
	raw[0] = 0x61 // type 6 = enterprise address, network 1 = mainnet
	addr, err := common.NewAddressFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestCachedChainContextProtocolParamsHitsInnerOnce(t *testing.T) {
	inner := &countingChainContext{FixedChainContext: fixed.NewEmptyFixedChainContext()}
	c, err := NewCachedChainContext(inner, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}

	first, err := c.ProtocolParams()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.ProtocolParams()
	if err != nil {
		t.Fatal(err)
	}
	if first.MinFeeConstant != second.MinFeeConstant {
		t.Errorf("expected cached params to match, got %d vs %d", first.MinFeeConstant, second.MinFeeConstant)
	}
	if inner.protocolParamsCalls != 1 {
		t.Errorf("expected inner ProtocolParams to be called once, got %d", inner.protocolParamsCalls)
	}
}

func TestCachedChainContextProtocolParamsCostModelsAreIndependentCopies(t *testing.T) {
	inner := fixed.NewEmptyFixedChainContext()
	c, err := NewCachedChainContext(inner, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}

	pp, err := c.ProtocolParams()
	if err != nil {
		t.Fatal(err)
	}
	pp.CostModels = map[string][]int64{"PlutusV1": {1, 2, 3}}

	again, err := c.ProtocolParams()
	if err != nil {
		t.Fatal(err)
	}
	if len(again.CostModels) != 0 {
		t.Error("expected mutation of a returned copy to not affect the cache")
	}
}

func TestCachedChainContextUtxosIsCachedPerAddress(t *testing.T) {
	inner := fixed.NewEmptyFixedChainContext()
	addr := testCacheAddress(t)

	var txHash common.Blake2b256
	txHash[0] = 0x01
	utxo := common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: txHash, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: addr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: 5_000_000},
		},
	}
	inner.AddUtxo(addr, utxo)

	c, err := NewCachedChainContext(inner, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}

	first, err := c.Utxos(addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 utxo, got %d", len(first))
	}

	// Add a second utxo directly to the inner context; the cached read
	// should still return the stale single-utxo snapshot until the TTL
	// expires.
	var txHash2 common.Blake2b256
	txHash2[0] = 0x02
	inner.AddUtxo(addr, common.Utxo{
		Id: shelley.ShelleyTransactionInput{TxId: txHash2, OutputIndex: 0},
		Output: &babbage.BabbageTransactionOutput{
			OutputAddress: addr,
			OutputAmount:  mary.MaryTransactionOutputValue{Amount: 1_000_000},
		},
	})

	second, err := c.Utxos(addr)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Errorf("expected the cached read to still see 1 utxo, got %d", len(second))
	}
}

func TestCachedChainContextDelegatesUncachedMethods(t *testing.T) {
	inner := fixed.NewEmptyFixedChainContext()
	c, err := NewCachedChainContext(inner, time.Minute, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.NetworkId() != inner.NetworkId() {
		t.Error("expected NetworkId to delegate to inner")
	}
	if _, err := c.SubmitTx(nil); err == nil {
		t.Error("expected SubmitTx to delegate to inner's error")
	}
}
