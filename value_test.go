package txbuilder

import (
	"math/big"
	"testing"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

func testPolicyID(b byte) common.Blake2b224 {
	var pid common.Blake2b224
	pid[0] = b
	return pid
}

func testMultiAsset(policyByte byte, name string, qty int64) *common.MultiAsset[common.MultiAssetTypeOutput] {
	data := map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput{
		testPolicyID(policyByte): {
			cbor.NewByteString([]byte(name)): big.NewInt(qty),
		},
	}
	ma := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	return &ma
}

func TestValueAddCoin(t *testing.T) {
	a := NewSimpleValue(100)
	b := NewSimpleValue(200)
	result, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if result.Coin != 300 {
		t.Errorf("expected 300, got %d", result.Coin)
	}
}

func TestValueAddWithAssets(t *testing.T) {
	a := NewValue(100, testMultiAsset(1, "token", 50))
	b := NewValue(200, testMultiAsset(1, "token", 30))
	result, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if result.Coin != 300 {
		t.Errorf("expected coin 300, got %d", result.Coin)
	}
	qty := result.Assets.Asset(testPolicyID(1), []byte("token"))
	if qty == nil || qty.Int64() != 80 {
		t.Errorf("expected 80 tokens, got %v", qty)
	}
}

func TestValueAddOverflow(t *testing.T) {
	a := NewSimpleValue(^uint64(0))
	b := NewSimpleValue(1)
	if _, err := a.Add(b); err == nil {
		t.Error("expected overflow error")
	}
}

func TestValueSubUnderflow(t *testing.T) {
	a := NewSimpleValue(100)
	b := NewSimpleValue(200)
	if _, err := a.Sub(b); err == nil {
		t.Error("expected underflow error")
	}
}

func TestValueSubAssetUnderflow(t *testing.T) {
	a := NewValue(200, testMultiAsset(1, "token", 10))
	b := NewValue(100, testMultiAsset(1, "token", 50))
	if _, err := a.Sub(b); err == nil {
		t.Error("expected asset underflow error")
	}
}

func TestValueGreaterOrEqual(t *testing.T) {
	a := NewValue(200, testMultiAsset(1, "token", 50))
	b := NewValue(100, testMultiAsset(1, "token", 30))
	if !a.GreaterOrEqual(b) {
		t.Error("expected a >= b")
	}
	if b.GreaterOrEqual(a) {
		t.Error("expected b < a")
	}
}

func TestValueLt(t *testing.T) {
	a := NewValue(100, testMultiAsset(1, "token", 10))
	b := NewValue(200, testMultiAsset(1, "token", 30))
	if !a.Lt(b) {
		t.Error("expected a < b")
	}
	if b.Lt(a) {
		t.Error("expected !(b < a)")
	}
}

func TestValueFilterPositive(t *testing.T) {
	v := NewValue(0, testMultiAsset(1, "token", -5))
	filtered := v.FilterPositive()
	if filtered.HasAssets() {
		t.Error("expected no positive assets to survive filtering")
	}
}

func TestValueIsEmpty(t *testing.T) {
	if !(Value{}).IsEmpty() {
		t.Error("expected zero value to be empty")
	}
	if NewSimpleValue(1).IsEmpty() {
		t.Error("expected non-zero coin to be non-empty")
	}
}

func TestValueClone(t *testing.T) {
	v := NewValue(100, testMultiAsset(1, "token", 10))
	clone := v.Clone()
	clone.Assets.Asset(testPolicyID(1), []byte("token")).SetInt64(999)
	orig := v.Assets.Asset(testPolicyID(1), []byte("token"))
	if orig.Int64() == 999 {
		t.Error("expected clone to share no backing storage with original")
	}
}

func TestMultiAssetIsEmptyNil(t *testing.T) {
	if !MultiAssetIsEmpty(nil) {
		t.Error("expected nil multi-asset to be empty")
	}
}
