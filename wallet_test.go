package txbuilder

import (
	"testing"

	"github.com/blinklabs-io/bursa/bip32"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/cardano-forge/txbuilder/constants"
)

func TestExternalWalletCannotSign(t *testing.T) {
	addr := testBuilderAddress(t)
	w := NewExternalWallet(addr)
	if w.Address() != addr {
		t.Error("expected Address to return the wallet's configured address")
	}
	if _, err := w.SignTxBody(common.Blake2b256{}); err == nil {
		t.Error("expected an error signing with a watch-only wallet")
	}
}

func TestExternalWalletPubKeyHashMatchesAddress(t *testing.T) {
	addr := testBuilderAddress(t)
	w := NewExternalWallet(addr)
	if w.PubKeyHash() != addr.PaymentKeyHash() {
		t.Error("expected PubKeyHash to match the address's payment key hash")
	}
}

func TestNewKeyPairWalletFromVerificationKeyMainnetVsTestnet(t *testing.T) {
	vkey := make([]byte, 32)
	vkey[0] = 0x07

	mainnet, err := NewKeyPairWalletFromVerificationKey(vkey, bip32.XPrv{}, constants.MAINNET)
	if err != nil {
		t.Fatal(err)
	}
	testnet, err := NewKeyPairWalletFromVerificationKey(vkey, bip32.XPrv{}, constants.TESTNET)
	if err != nil {
		t.Fatal(err)
	}

	if mainnet.Address().String() == testnet.Address().String() {
		t.Error("expected mainnet and testnet addresses derived from the same key to differ")
	}
}
