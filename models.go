package txbuilder

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Unit is one native-token line item: a hex-encoded policy ID, a hex-encoded
// asset name, and a quantity.
type Unit struct {
	PolicyId string
	Name     string
	Quantity int64
}

// NewUnit creates a Unit from its hex-encoded policy ID, hex-encoded asset
// name, and quantity.
func NewUnit(policyId string, name string, quantity int64) Unit {
	return Unit{PolicyId: policyId, Name: name, Quantity: quantity}
}

// ToValue converts a Unit to a Value holding only this asset.
func (u *Unit) ToValue() (Value, error) {
	policyBytes, err := hex.DecodeString(u.PolicyId)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid policy id hex %q: %v", ErrInvalidArgument, u.PolicyId, err)
	}
	if len(policyBytes) != common.Blake2b224Size {
		return Value{}, fmt.Errorf("%w: policy id must be %d bytes, got %d", ErrInvalidArgument, common.Blake2b224Size, len(policyBytes))
	}
	var policyID common.Blake2b224
	copy(policyID[:], policyBytes)

	nameBytes, err := hex.DecodeString(u.Name)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid asset name hex %q: %v", ErrInvalidArgument, u.Name, err)
	}

	data := map[common.Blake2b224]map[cbor.ByteString]*big.Int{
		policyID: {cbor.NewByteString(nameBytes): big.NewInt(u.Quantity)},
	}
	return Value{Assets: MultiAssetFromMap(data)}, nil
}

// PaymentI is the common interface for anything that can become a
// transaction output: a requested amount plus a minimum-ADA check.
type PaymentI interface {
	// EnsureMinUTXO raises the lovelace amount, if needed, to satisfy the
	// minimum-ADA requirement for the receiver address, datum, and units
	// already on this payment.
	EnsureMinUTXO(coinsPerUtxoByte int64) error
	// ToTxOut renders this payment as a ledger output.
	ToTxOut() (babbage.BabbageTransactionOutput, error)
	// ToValue returns the (coin, assets) pair this payment carries.
	ToValue() (Value, error)
}

// Payment is a single requested transaction output: an address, a lovelace
// amount, optional native-token units, and an optional datum or script
// reference.
type Payment struct {
	Lovelace  int64
	Receiver  common.Address
	Units     []Unit
	Datum     *common.Datum
	DatumHash []byte
	IsInline  bool
	ScriptRef *common.ScriptRef
}

// NewPayment creates a simple lovelace-only payment to receiver.
func NewPayment(receiver common.Address, lovelace int64) *Payment {
	return &Payment{Receiver: receiver, Lovelace: lovelace}
}

// NewPaymentFromValue creates a Payment carrying the given Value, paid to receiver.
func NewPaymentFromValue(receiver common.Address, value Value) *Payment {
	p := &Payment{Receiver: receiver, Lovelace: int64(value.Coin)}
	if value.Assets != nil {
		for _, policyID := range value.Assets.Policies() {
			for _, name := range value.Assets.Assets(policyID) {
				qty := value.Assets.Asset(policyID, name)
				if qty == nil {
					continue
				}
				p.Units = append(p.Units, NewUnit(hex.EncodeToString(policyID.Bytes()), hex.EncodeToString(name), qty.Int64()))
			}
		}
	}
	return p
}

// PaymentFromTxOut reconstructs a Payment's address, value, and script
// reference from a ledger output. Datum information does not round-trip
// through DatumOption; callers that need it track the datum separately, the
// way the builder does for its own outputs.
func PaymentFromTxOut(out babbage.BabbageTransactionOutput) *Payment {
	p := NewPaymentFromValue(out.OutputAddress, ValueFromMaryValue(out.OutputAmount))
	p.ScriptRef = out.TxOutScriptRef
	return p
}

// ToValue returns the (coin, assets) pair this payment represents.
func (p *Payment) ToValue() (Value, error) {
	if p.Lovelace < 0 {
		return Value{}, fmt.Errorf("%w: negative lovelace amount %d", ErrInvalidArgument, p.Lovelace)
	}
	value := NewSimpleValue(uint64(p.Lovelace))
	for _, unit := range p.Units {
		if unit.Quantity < 0 {
			return Value{}, fmt.Errorf("%w: negative asset quantity %d for policy %s", ErrInvalidArgument, unit.Quantity, unit.PolicyId)
		}
		uv, err := unit.ToValue()
		if err != nil {
			return Value{}, err
		}
		value, err = value.Add(uv)
		if err != nil {
			return Value{}, err
		}
	}
	return value, nil
}

// EnsureMinUTXO raises p.Lovelace until the resulting output satisfies the
// minimum-ADA rule. Because minimum ADA depends on output size, which itself
// depends on the lovelace amount's own CBOR width, this iterates to a fixed
// point the way pycardano's min_lovelace_post_alonzo / TransactionOutput
// convergence loop does; three passes is always enough headroom since the
// coin field's CBOR width increases by at most one byte per pass.
func (p *Payment) EnsureMinUTXO(coinsPerUtxoByte int64) error {
	for i := 0; i < 3; i++ {
		out, err := p.ToTxOut()
		if err != nil {
			return err
		}
		minLovelace, err := MinLovelacePostAlonzo(&out, coinsPerUtxoByte)
		if err != nil {
			return fmt.Errorf("compute min lovelace: %w", err)
		}
		if p.Lovelace >= minLovelace {
			return nil
		}
		p.Lovelace = minLovelace
	}
	return nil
}

// ToTxOut renders the payment as a ledger output.
func (p *Payment) ToTxOut() (babbage.BabbageTransactionOutput, error) {
	value, err := p.ToValue()
	if err != nil {
		return babbage.BabbageTransactionOutput{}, err
	}
	var datumOpt *babbage.BabbageTransactionOutputDatumOption
	switch {
	case p.IsInline && p.Datum != nil:
		datumOpt, err = NewDatumOptionInline(p.Datum)
		if err != nil {
			return babbage.BabbageTransactionOutput{}, err
		}
	case len(p.DatumHash) > 0:
		if len(p.DatumHash) != common.Blake2b256Size {
			return babbage.BabbageTransactionOutput{}, fmt.Errorf("%w: datum hash must be %d bytes, got %d", ErrInvalidArgument, common.Blake2b256Size, len(p.DatumHash))
		}
		var hash common.Blake2b256
		copy(hash[:], p.DatumHash)
		datumOpt, err = NewDatumOptionHash(hash)
		if err != nil {
			return babbage.BabbageTransactionOutput{}, err
		}
	}
	return NewBabbageOutput(p.Receiver, value, datumOpt, p.ScriptRef), nil
}

// NewDatumOptionHash creates a BabbageTransactionOutputDatumOption carrying a datum hash.
func NewDatumOptionHash(hash common.Blake2b256) (*babbage.BabbageTransactionOutputDatumOption, error) {
	cborBytes, err := cbor.Encode([]any{0, hash})
	if err != nil {
		return nil, fmt.Errorf("encode datum option hash: %w", err)
	}
	var opt babbage.BabbageTransactionOutputDatumOption
	if err := opt.UnmarshalCBOR(cborBytes); err != nil {
		return nil, fmt.Errorf("unmarshal datum option: %w", err)
	}
	return &opt, nil
}

// NewDatumOptionInline creates a BabbageTransactionOutputDatumOption carrying an inline datum.
func NewDatumOptionInline(datum *common.Datum) (*babbage.BabbageTransactionOutputDatumOption, error) {
	if datum == nil {
		return nil, fmt.Errorf("%w: datum cannot be nil", ErrInvalidArgument)
	}
	datumCbor, err := cbor.Encode(datum)
	if err != nil {
		return nil, fmt.Errorf("encode datum: %w", err)
	}
	tagged := cbor.Tag{Number: 24, Content: datumCbor}
	cborBytes, err := cbor.Encode([]any{1, tagged})
	if err != nil {
		return nil, fmt.Errorf("encode inline datum option: %w", err)
	}
	var opt babbage.BabbageTransactionOutputDatumOption
	if err := opt.UnmarshalCBOR(cborBytes); err != nil {
		return nil, fmt.Errorf("unmarshal datum option: %w", err)
	}
	return &opt, nil
}

// NewBabbageOutputSimple creates an output carrying only an address and lovelace.
func NewBabbageOutputSimple(addr common.Address, coin uint64) babbage.BabbageTransactionOutput {
	return babbage.BabbageTransactionOutput{
		OutputAddress: addr,
		OutputAmount:  Value{Coin: coin}.ToMaryValue(),
	}
}

// NewBabbageOutput creates an output from an address, a Value, and the
// optional datum option / script reference.
func NewBabbageOutput(
	addr common.Address,
	value Value,
	datumOpt *babbage.BabbageTransactionOutputDatumOption,
	scriptRef *common.ScriptRef,
) babbage.BabbageTransactionOutput {
	return babbage.BabbageTransactionOutput{
		OutputAddress:  addr,
		OutputAmount:   value.ToMaryValue(),
		DatumOption:    datumOpt,
		TxOutScriptRef: scriptRef,
	}
}

// OutputCborSize returns the CBOR-encoded byte length of output.
func OutputCborSize(output *babbage.BabbageTransactionOutput) (int, error) {
	cborBytes, err := cbor.Encode(output)
	if err != nil {
		return 0, err
	}
	return len(cborBytes), nil
}

// MinLovelacePostAlonzo computes the minimum lovelace required for output
// under the post-Alonzo coins-per-UTxO-byte rule: coinsPerUtxoByte * (size + 160).
func MinLovelacePostAlonzo(output *babbage.BabbageTransactionOutput, coinsPerUtxoByte int64) (int64, error) {
	outputSize, err := OutputCborSize(output)
	if err != nil {
		return 0, err
	}
	return coinsPerUtxoByte * int64(outputSize+160), nil
}

// NewScriptRef creates a ScriptRef by detecting the concrete script type.
func NewScriptRef(script common.Script) (*common.ScriptRef, error) {
	var scriptType uint
	switch script.(type) {
	case common.NativeScript:
		scriptType = 0
	case common.PlutusV1Script:
		scriptType = 1
	case common.PlutusV2Script:
		scriptType = 2
	case common.PlutusV3Script:
		scriptType = 3
	default:
		return nil, fmt.Errorf("%w: unsupported script type %T", ErrInvalidArgument, script)
	}
	return &common.ScriptRef{Type: scriptType, Script: script}, nil
}

// MultiAssetFromMap builds a MultiAsset from a policy -> asset -> quantity map.
// Returns nil for an empty map, so Value.Assets stays nil rather than pointing
// at an empty MultiAsset, matching the nil-vs-empty convention used everywhere
// else in this package.
func MultiAssetFromMap(data map[common.Blake2b224]map[cbor.ByteString]*big.Int) *common.MultiAsset[common.MultiAssetTypeOutput] {
	if len(data) == 0 {
		return nil
	}
	result := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	return &result
}

// SignMessage signs message with a standard Ed25519 private key (32-byte seed
// or 64-byte seed||public-key). It is not suitable for Cardano BIP32-Ed25519
// extended keys; those sign via bip32.XPrv.Sign directly, as Wallet
// implementations in wallet.go do.
func SignMessage(privateKey []byte, message []byte) ([]byte, error) {
	var seed []byte
	switch len(privateKey) {
	case 64:
		seed = privateKey[:32]
	case 32:
		seed = privateKey
	default:
		return nil, fmt.Errorf("%w: invalid private key length %d, must be 32 or 64 bytes", ErrInvalidArgument, len(privateKey))
	}
	edKey := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(edKey, message), nil
}
