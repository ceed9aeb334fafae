package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

func TestUnitToValue(t *testing.T) {
	policyHex := "01000000000000000000000000000000000000000000000000000000"
	u := NewUnit(policyHex, "746f6b656e", 42)
	v, err := u.ToValue()
	if err != nil {
		t.Fatal(err)
	}
	qty := v.Assets.Asset(testPolicyID(1), []byte("token"))
	if qty == nil || qty.Int64() != 42 {
		t.Errorf("expected 42 tokens, got %v", qty)
	}
}

func TestUnitToValueInvalidPolicyHex(t *testing.T) {
	u := NewUnit("not-hex", "746f6b656e", 1)
	if _, err := u.ToValue(); err == nil {
		t.Error("expected an error for invalid policy id hex")
	}
}

func TestUnitToValueWrongPolicyLength(t *testing.T) {
	u := NewUnit("aabb", "746f6b656e", 1)
	if _, err := u.ToValue(); err == nil {
		t.Error("expected an error for a policy id that isn't 28 bytes")
	}
}

func TestPaymentToValueNegativeLovelaceFails(t *testing.T) {
	addr := testBuilderAddress(t)
	p := NewPayment(addr, -1)
	if _, err := p.ToValue(); err == nil {
		t.Error("expected an error for a negative lovelace amount")
	}
}

func TestPaymentToTxOut(t *testing.T) {
	addr := testBuilderAddress(t)
	p := NewPayment(addr, 2_000_000)
	out, err := p.ToTxOut()
	if err != nil {
		t.Fatal(err)
	}
	if out.OutputAmount.Amount != 2_000_000 {
		t.Errorf("expected 2_000_000 lovelace, got %d", out.OutputAmount.Amount)
	}
}

func TestPaymentEnsureMinUTXORaisesLovelace(t *testing.T) {
	addr := testBuilderAddress(t)
	p := NewPayment(addr, 1)
	if err := p.EnsureMinUTXO(4310); err != nil {
		t.Fatal(err)
	}
	if p.Lovelace <= 1 {
		t.Errorf("expected EnsureMinUTXO to raise the lovelace amount above 1, got %d", p.Lovelace)
	}
}

func TestNewPaymentFromValueRoundTripsAssets(t *testing.T) {
	addr := testBuilderAddress(t)
	v := NewValue(5_000_000, testMultiAsset(1, "token", 7))
	p := NewPaymentFromValue(addr, v)
	if p.Lovelace != 5_000_000 {
		t.Errorf("expected lovelace 5_000_000, got %d", p.Lovelace)
	}
	if len(p.Units) != 1 || p.Units[0].Quantity != 7 {
		t.Errorf("expected a single unit with quantity 7, got %+v", p.Units)
	}
}

func TestNewDatumOptionHashRoundTrips(t *testing.T) {
	var hash common.Blake2b256
	hash[0] = 0x42
	opt, err := NewDatumOptionHash(hash)
	if err != nil {
		t.Fatal(err)
	}
	if opt == nil {
		t.Fatal("expected a non-nil datum option")
	}
}

func TestNewDatumOptionInlineRejectsNil(t *testing.T) {
	if _, err := NewDatumOptionInline(nil); err == nil {
		t.Error("expected an error for a nil datum")
	}
}

func TestNewDatumOptionInline(t *testing.T) {
	datum := common.Datum{}
	opt, err := NewDatumOptionInline(&datum)
	if err != nil {
		t.Fatal(err)
	}
	if opt == nil {
		t.Fatal("expected a non-nil datum option")
	}
}

func TestMinLovelacePostAlonzoScalesWithSize(t *testing.T) {
	addr := testBuilderAddress(t)
	small := NewBabbageOutputSimple(addr, 0)
	smallMin, err := MinLovelacePostAlonzo(&small, 4310)
	if err != nil {
		t.Fatal(err)
	}

	withAssets := NewBabbageOutputSimple(addr, 0)
	withAssets.OutputAmount.Assets = testMultiAsset(1, "token", 1)
	largerMin, err := MinLovelacePostAlonzo(&withAssets, 4310)
	if err != nil {
		t.Fatal(err)
	}
	if largerMin <= smallMin {
		t.Errorf("expected an output carrying assets to require more min-ada, got %d vs %d", largerMin, smallMin)
	}
}

func TestNewScriptRefUnsupportedType(t *testing.T) {
	if _, err := NewScriptRef(nil); err == nil {
		t.Error("expected an error for an unsupported script type")
	}
}

func TestSignMessageRejectsBadKeyLength(t *testing.T) {
	if _, err := SignMessage([]byte{1, 2, 3}, []byte("msg")); err == nil {
		t.Error("expected an error for an invalid private key length")
	}
}

func TestSignMessageValidSeed(t *testing.T) {
	seed := make([]byte, 32)
	sig, err := SignMessage(seed, []byte("msg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) == 0 {
		t.Error("expected a non-empty signature")
	}
}
