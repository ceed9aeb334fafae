package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/cardano-forge/txbuilder/backend/fixed"
	"github.com/cardano-forge/txbuilder/coinselection"
)

func TestUnfulfilledAmountCoinOnly(t *testing.T) {
	requested := NewSimpleValue(10_000_000)
	selected := NewSimpleValue(4_000_000)
	got := unfulfilledAmount(requested, selected)
	if got.Coin != 6_000_000 {
		t.Errorf("expected 6_000_000 unfulfilled, got %d", got.Coin)
	}
}

func TestUnfulfilledAmountAlreadyCovered(t *testing.T) {
	requested := NewSimpleValue(4_000_000)
	selected := NewSimpleValue(10_000_000)
	got := unfulfilledAmount(requested, selected)
	if !got.IsEmpty() {
		t.Errorf("expected no unfulfilled amount when selected covers requested, got %+v", got)
	}
}

func TestUnfulfilledAmountAssetsPartiallyCovered(t *testing.T) {
	requested := NewValue(0, testMultiAsset(1, "token", 100))
	selected := NewValue(0, testMultiAsset(1, "token", 40))
	got := unfulfilledAmount(requested, selected)
	qty := got.Assets.Asset(testPolicyID(1), []byte("token"))
	if qty == nil || qty.Int64() != 60 {
		t.Errorf("expected 60 tokens still unfulfilled, got %v", qty)
	}
}

func TestUnfulfilledAmountAssetsFullyCoveredDropsToZero(t *testing.T) {
	requested := NewValue(0, testMultiAsset(1, "token", 40))
	selected := NewValue(0, testMultiAsset(1, "token", 100))
	got := unfulfilledAmount(requested, selected)
	if got.HasAssets() {
		t.Error("expected no unfulfilled assets when selected over-covers requested")
	}
}

func TestTrimToRequestedDropsIrrelevantAssets(t *testing.T) {
	requested := NewValue(0, testMultiAsset(1, "wanted", 1))
	selected := NewValue(100, testMultiAsset(2, "other", 50))
	trimmed := trimToRequested(selected, requested)
	if trimmed.Coin != 100 {
		t.Errorf("expected coin to pass through untrimmed, got %d", trimmed.Coin)
	}
	if trimmed.HasAssets() {
		t.Error("expected assets outside the requested set to be dropped")
	}
}

func TestValueToRequestedFiltersNonPositive(t *testing.T) {
	v := NewValue(5, testMultiAsset(1, "token", -3))
	req := valueToRequested(v)
	if req.Coin != 5 {
		t.Errorf("expected coin 5, got %d", req.Coin)
	}
	if len(req.Assets) != 0 {
		t.Error("expected non-positive asset quantities to be excluded from the request")
	}
}

func TestSelectUtxosAllSelectorsFail(t *testing.T) {
	failingSelector := failAlwaysSelector{}
	_, err := SelectUtxos(nil, NewSimpleValue(1), []Selector{failingSelector})
	if err == nil {
		t.Error("expected all-selectors-failed error")
	}
}

type failAlwaysSelector struct{}

func (failAlwaysSelector) Select([]common.Utxo, coinselection.Requested) ([]common.Utxo, error) {
	return nil, errSelectorAlwaysFails
}

var errSelectorAlwaysFails = errSentinel("selector always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func TestCandidatePoolDedupesAndExcludes(t *testing.T) {
	cc := fixed.NewEmptyFixedChainContext()
	addr := testBuilderAddress(t)
	utxo := addBuilderUtxo(cc, addr, 5_000_000, 0x01, 0)
	excludedUtxo := addBuilderUtxo(cc, addr, 3_000_000, 0x02, 0)

	excluded := map[string]struct{}{utxoRef(excludedUtxo): {}}
	pool, err := CandidatePool(cc, []common.Address{addr, addr}, excluded)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 || utxoRef(pool[0]) != utxoRef(utxo) {
		t.Errorf("expected only the non-excluded utxo in the pool, got %d entries", len(pool))
	}
}
