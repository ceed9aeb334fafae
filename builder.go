package txbuilder

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
	"go.uber.org/zap"

	"github.com/cardano-forge/txbuilder/backend"
)

// Redeemer is one Plutus (tag, index, data, ex-units) triple. Index is
// assigned late, during Build, as the position of the redeemer's associated
// UTxO in the final sorted input list (spec.md 3, 4.6).
type Redeemer struct {
	Tag     common.RedeemerTag
	Index   uint32
	Data    common.Datum
	ExUnits common.ExUnits
}

// scriptWitness bundles the (script, datum, redeemer) triple a script input
// needs, plus the utxo it spends, so Build can locate it again once inputs
// are sorted.
type scriptWitness struct {
	utxo     common.Utxo
	script   common.Script
	datum    *common.Datum
	redeemer *Redeemer
}

// AuxiliaryData holds optional transaction metadata, keyed by metadata
// label. Values are converted to common.TransactionMetadatum on demand by
// toMetadatum (scalars, []byte, and nested map[string]any/map[uint64]any).
type AuxiliaryData struct {
	Metadata map[uint64]any
}

// metaMap converts Metadata into a common.MetaMap with deterministic
// (sorted) key ordering, required for stable CBOR encoding and hashing.
func (a *AuxiliaryData) metaMap() (*common.MetaMap, error) {
	keys := make([]uint64, 0, len(a.Metadata))
	for k := range a.Metadata {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pairs := make([]common.MetaPair, 0, len(a.Metadata))
	for _, k := range keys {
		val, err := toMetadatum(a.Metadata[k])
		if err != nil {
			return nil, fmt.Errorf("metadata key %d: %w", k, err)
		}
		pairs = append(pairs, common.MetaPair{
			Key:   common.MetaInt{Value: new(big.Int).SetUint64(k)},
			Value: val,
		})
	}
	return &common.MetaMap{Pairs: pairs}, nil
}

// toMetadatum converts a Go value to a common.TransactionMetadatum.
// Supports scalars (string, int, int64, uint64, []byte) and nested
// map[string]any/map[uint64]any values.
func toMetadatum(v any) (common.TransactionMetadatum, error) {
	switch tv := v.(type) {
	case common.TransactionMetadatum:
		return tv, nil
	case string:
		return common.MetaText{Value: tv}, nil
	case int:
		return common.MetaInt{Value: big.NewInt(int64(tv))}, nil
	case int64:
		return common.MetaInt{Value: big.NewInt(tv)}, nil
	case uint64:
		return common.MetaInt{Value: new(big.Int).SetUint64(tv)}, nil
	case []byte:
		return common.MetaBytes{Value: tv}, nil
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]common.MetaPair, 0, len(tv))
		for _, k := range keys {
			val, err := toMetadatum(tv[k])
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			pairs = append(pairs, common.MetaPair{Key: common.MetaText{Value: k}, Value: val})
		}
		return common.MetaMap{Pairs: pairs}, nil
	case map[uint64]any:
		keys := make([]uint64, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		pairs := make([]common.MetaPair, 0, len(tv))
		for _, k := range keys {
			val, err := toMetadatum(tv[k])
			if err != nil {
				return nil, fmt.Errorf("map key %d: %w", k, err)
			}
			pairs = append(pairs, common.MetaPair{Key: common.MetaInt{Value: new(big.Int).SetUint64(k)}, Value: val})
		}
		return common.MetaMap{Pairs: pairs}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported metadata value type %T", ErrInvalidArgument, v)
	}
}

// Cbor returns the canonical CBOR encoding of a's metadata map.
func (a *AuxiliaryData) Cbor() ([]byte, error) {
	md, err := a.metaMap()
	if err != nil {
		return nil, err
	}
	return cbor.Encode(md)
}

// Hash returns the Blake2b-256 digest of a's CBOR encoding, matching the
// external AuxiliaryData.hash() contract in spec.md 6.
func (a *AuxiliaryData) Hash() (common.Blake2b256, error) {
	b, err := a.Cbor()
	if err != nil {
		return common.Blake2b256{}, err
	}
	return common.Blake2b256Hash(b), nil
}

// TransactionBody is the immutable result of Builder.Build: a fully
// assembled Conway-era transaction body plus the ancillary witness-bearing
// data (scripts, datums, redeemers) needed to build the rest of the witness
// set and, eventually, the signed transaction. It is independent of the
// Builder that produced it, per spec.md 3's ownership note.
type TransactionBody struct {
	body                conway.ConwayTransactionBody
	nativeScripts       []NativeScript
	commonNativeScripts []common.NativeScript
	plutusV1Scripts     []common.PlutusV1Script
	plutusV2Scripts     []common.PlutusV2Script
	plutusV3Scripts     []common.PlutusV3Script
	datums              []common.Datum
	redeemers           map[common.RedeemerKey]common.RedeemerValue
	auxiliaryData       *AuxiliaryData
	vkeyWitnessCount    int
}

// Cbor returns the canonical CBOR encoding of the transaction body alone
// (not the full transaction), matching the external to_cbor_bytes contract.
func (tb *TransactionBody) Cbor() ([]byte, error) {
	return cbor.Encode(&tb.body)
}

// Hash returns the Blake2b-256 digest of the body's CBOR encoding. This is
// what signing keys sign over in BuildAndSign.
func (tb *TransactionBody) Hash() (common.Blake2b256, error) {
	b, err := tb.Cbor()
	if err != nil {
		return common.Blake2b256{}, err
	}
	return common.Blake2b256Hash(b), nil
}

// WitnessSet assembles the Conway witness set for this body, minus vkey
// witnesses (those are only known once signers are available), matching
// Builder.BuildWitnessSet / spec.md 4.6's build_witness_set.
func (tb *TransactionBody) WitnessSet() conway.ConwayTransactionWitnessSet {
	return assembleWitnessSet(
		tb.nativeScripts, tb.commonNativeScripts,
		tb.plutusV1Scripts, tb.plutusV2Scripts, tb.plutusV3Scripts,
		tb.datums, tb.redeemers,
	)
}

// assembleWitnessSet builds a Conway witness set from its constituent parts.
// Used both for the exact-fee estimation pass in Builder.build (which needs
// the real witness-set size, including any declared scripts, to size the
// transaction correctly) and for TransactionBody.WitnessSet, so the two
// never drift apart on what counts toward a transaction's size.
func assembleWitnessSet(
	nativeScripts []NativeScript,
	commonNativeScripts []common.NativeScript,
	plutusV1Scripts []common.PlutusV1Script,
	plutusV2Scripts []common.PlutusV2Script,
	plutusV3Scripts []common.PlutusV3Script,
	datums []common.Datum,
	redeemers map[common.RedeemerKey]common.RedeemerValue,
) conway.ConwayTransactionWitnessSet {
	var ws conway.ConwayTransactionWitnessSet
	scripts := make([]common.NativeScript, 0, len(nativeScripts)+len(commonNativeScripts))
	for _, ns := range nativeScripts {
		cs, err := ns.ToCommon()
		if err != nil {
			continue
		}
		scripts = append(scripts, cs)
	}
	scripts = append(scripts, commonNativeScripts...)
	if len(scripts) > 0 {
		ws.WsNativeScripts = cbor.NewSetType(scripts, true)
	}
	if len(plutusV1Scripts) > 0 {
		ws.WsPlutusV1Scripts = cbor.NewSetType(plutusV1Scripts, true)
	}
	if len(plutusV2Scripts) > 0 {
		ws.WsPlutusV2Scripts = cbor.NewSetType(plutusV2Scripts, true)
	}
	if len(plutusV3Scripts) > 0 {
		ws.WsPlutusV3Scripts = cbor.NewSetType(plutusV3Scripts, true)
	}
	if len(datums) > 0 {
		ws.WsPlutusData = cbor.NewSetType(datums, true)
	}
	if len(redeemers) > 0 {
		ws.WsRedeemers = conway.ConwayRedeemers{Redeemers: redeemers}
	}
	return ws
}

// Transaction is a fully witnessed, signed transaction ready for
// submission via ChainContext.SubmitTx.
type Transaction struct {
	Body          TransactionBody
	VkeyWitnesses []common.VkeyWitness
}

// Cbor returns the canonical CBOR encoding of the full signed transaction.
func (tx *Transaction) Cbor() ([]byte, error) {
	ws := tx.Body.WitnessSet()
	ws.VkeyWitnesses = cbor.NewSetType(tx.VkeyWitnesses, true)
	ctx := conway.ConwayTransaction{
		Body:       tx.Body.body,
		WitnessSet: ws,
		TxIsValid:  true,
	}
	if tx.Body.auxiliaryData != nil {
		md, err := tx.Body.auxiliaryData.metaMap()
		if err != nil {
			return nil, fmt.Errorf("build auxiliary data: %w", err)
		}
		ctx.TxMetadata = md
	}
	return cbor.Encode(&ctx)
}

// Builder is the public state machine described by spec.md 4.6: a
// declarative set of inputs/outputs/scripts/mint/etc. accumulated through
// chained setters, resolved into a TransactionBody by Build.
//
// A Builder is not safe for concurrent use (spec.md 5).
type Builder struct {
	cc        backend.ChainContext
	logger    *zap.SugaredLogger
	selectors []Selector

	inputs          []common.Utxo
	excludedInputs  []common.Utxo
	inputAddresses  []common.Address
	outputs         []babbage.BabbageTransactionOutput
	fee             uint64
	ttl             *uint64
	validityStart   *uint64
	mint            *common.MultiAsset[common.MultiAssetTypeOutput]
	nativeScripts   []NativeScript
	requiredSigners []common.Blake2b224
	collaterals     []common.Utxo
	auxiliaryData   *AuxiliaryData

	plutusV1Scripts     map[common.Blake2b224]common.PlutusV1Script
	plutusV2Scripts     map[common.Blake2b224]common.PlutusV2Script
	plutusV3Scripts     map[common.Blake2b224]common.PlutusV3Script
	commonNativeScripts []common.NativeScript
	scriptWitnesses     map[string]*scriptWitness // keyed by utxoRef
	extraDatums         []common.Datum

	err error
}

// NewBuilder creates a Builder that sources UTxOs and protocol parameters
// from cc. selectors, if empty, defaults to DefaultSelectors at Build time.
func NewBuilder(cc backend.ChainContext, selectors ...Selector) *Builder {
	return &Builder{
		cc:              cc,
		logger:          zap.NewNop().Sugar(),
		selectors:       selectors,
		plutusV1Scripts: make(map[common.Blake2b224]common.PlutusV1Script),
		plutusV2Scripts: make(map[common.Blake2b224]common.PlutusV2Script),
		plutusV3Scripts: make(map[common.Blake2b224]common.PlutusV3Script),
		scriptWitnesses: make(map[string]*scriptWitness),
	}
}

// SetLogger installs a logger used to trace selector attempts and failures
// during the selection driver (spec.md 4.5/7). Passing nil restores the
// no-op logger.
func (b *Builder) SetLogger(logger *zap.SugaredLogger) *Builder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b.logger = logger
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddInput appends utxo to the pre-selected input set.
func (b *Builder) AddInput(utxo common.Utxo) *Builder {
	b.inputs = append(b.inputs, utxo)
	return b
}

// AddExcludedInput marks utxo as one that must never be drawn, whether
// pre-selected or discovered through the candidate pool.
func (b *Builder) AddExcludedInput(utxo common.Utxo) *Builder {
	b.excludedInputs = append(b.excludedInputs, utxo)
	return b
}

// AddInputAddress registers addr as a source the Selection Driver may query
// for candidate UTxOs if the declared outputs are not already covered.
func (b *Builder) AddInputAddress(addr common.Address) *Builder {
	b.inputAddresses = append(b.inputAddresses, addr)
	return b
}

// AddScriptInput spends utxo using script, with witness datum and redeemer.
// Preconditions (spec.md 4.6): utxo's address must be a script address, and
// datum's hash must match the hash already committed on utxo's output. The
// redeemer's Index is a placeholder until Build assigns the real one.
func (b *Builder) AddScriptInput(utxo common.Utxo, script common.Script, datum *common.Datum, redeemer Redeemer) *Builder {
	if b.err != nil {
		return b
	}
	if utxo.Output.Address().PaymentKeyHash() != (common.Blake2b224{}) {
		return b.fail(fmt.Errorf("%w: add_script_input requires a script address", ErrInvalidArgument))
	}
	if datum != nil {
		expected, hasHash, err := datumOptionHash(utxo.Output)
		if err != nil {
			return b.fail(fmt.Errorf("read datum hash from utxo: %w", err))
		}
		if hasHash {
			actual, err := hashDatum(datum)
			if err != nil {
				return b.fail(fmt.Errorf("hash supplied datum: %w", err))
			}
			if actual != expected {
				return b.fail(fmt.Errorf("%w: datum hash does not match utxo's committed datum hash", ErrInvalidArgument))
			}
		}
	}

	r := redeemer
	sw := &scriptWitness{utxo: utxo, script: script, datum: datum, redeemer: &r}
	b.inputs = append(b.inputs, utxo)
	b.scriptWitnesses[utxoRef(utxo)] = sw
	if datum != nil {
		b.extraDatums = append(b.extraDatums, *datum)
	}
	switch s := script.(type) {
	case common.NativeScript:
		// s round-trips only through CBOR (gouroboros exposes no accessors
		// on it), unlike the local NativeScript tree built by
		// AddNativeScript, so it's tracked separately and attached directly
		// to the witness set rather than walked for fake vkey hashes.
		b.commonNativeScripts = append(b.commonNativeScripts, s)
	case common.PlutusV1Script:
		b.plutusV1Scripts[common.Blake2b224Hash(s)] = s
	case common.PlutusV2Script:
		b.plutusV2Scripts[common.Blake2b224Hash(s)] = s
	case common.PlutusV3Script:
		b.plutusV3Scripts[common.Blake2b224Hash(s)] = s
	default:
		return b.fail(fmt.Errorf("%w: unsupported script type %T", ErrInvalidArgument, script))
	}
	return b
}

// AddOutput appends out to the declared outputs. If datum is supplied, it is
// attached to the output either inline or by hash depending on isInline; if
// addDatumToWitness is true, the datum's preimage is also recorded so it can
// be attached to the witness set (needed when the datum is only referenced
// by hash on-chain but must still be visible to validators off-chain).
func (b *Builder) AddOutput(out PaymentI, datum *common.Datum, isInline bool, addDatumToWitness bool) *Builder {
	if b.err != nil {
		return b
	}
	if p, ok := out.(*Payment); ok && datum != nil {
		p.Datum = datum
		p.IsInline = isInline
		if !isInline {
			hash, err := hashDatum(datum)
			if err != nil {
				return b.fail(fmt.Errorf("hash output datum: %w", err))
			}
			p.DatumHash = hash.Bytes()
		}
	}
	txOut, err := out.ToTxOut()
	if err != nil {
		return b.fail(fmt.Errorf("render output: %w", err))
	}
	b.outputs = append(b.outputs, txOut)
	if addDatumToWitness && datum != nil {
		b.extraDatums = append(b.extraDatums, *datum)
	}
	return b
}

// SetTTL sets the transaction's time-to-live slot.
func (b *Builder) SetTTL(ttl uint64) *Builder {
	b.ttl = &ttl
	return b
}

// SetValidityStart sets the slot before which the transaction is invalid.
func (b *Builder) SetValidityStart(slot uint64) *Builder {
	b.validityStart = &slot
	return b
}

// SetMint sets the multi-asset mint/burn amount (negative quantities burn).
func (b *Builder) SetMint(mint *common.MultiAsset[common.MultiAssetTypeOutput]) *Builder {
	b.mint = mint
	return b
}

// AddNativeScript declares a native script witness, contributing its
// reachable pubkey hashes to fake-witness construction (spec.md 4.6).
func (b *Builder) AddNativeScript(ns NativeScript) *Builder {
	b.nativeScripts = append(b.nativeScripts, ns)
	return b
}

// AddRequiredSigner declares a vkey hash that must sign the transaction even
// though it owns no input (e.g. a minting-policy signer).
func (b *Builder) AddRequiredSigner(hash common.Blake2b224) *Builder {
	b.requiredSigners = append(b.requiredSigners, hash)
	return b
}

// AddCollateral declares utxo as collateral offered on script failure.
func (b *Builder) AddCollateral(utxo common.Utxo) *Builder {
	b.collaterals = append(b.collaterals, utxo)
	return b
}

// SetAuxiliaryData attaches optional transaction metadata.
func (b *Builder) SetAuxiliaryData(aux *AuxiliaryData) *Builder {
	b.auxiliaryData = aux
	return b
}

func hasOverlap(a, b []common.Utxo) bool {
	refs := make(map[string]struct{}, len(a))
	for _, u := range a {
		refs[utxoRef(u)] = struct{}{}
	}
	for _, u := range b {
		if _, ok := refs[utxoRef(u)]; ok {
			return true
		}
	}
	return false
}

func excludedRefSet(inputs, excluded []common.Utxo) map[string]struct{} {
	set := make(map[string]struct{}, len(inputs)+len(excluded))
	for _, u := range inputs {
		set[utxoRef(u)] = struct{}{}
	}
	for _, u := range excluded {
		set[utxoRef(u)] = struct{}{}
	}
	return set
}

// hashDatum returns the Blake2b-256 digest of datum's canonical CBOR
// encoding, the hash that gets committed on-chain as an output's datum hash.
func hashDatum(datum *common.Datum) (common.Blake2b256, error) {
	b, err := cbor.Encode(datum)
	if err != nil {
		return common.Blake2b256{}, err
	}
	return common.Blake2b256Hash(b), nil
}

// datumOptionHash extracts the committed datum hash from a transaction
// output, if it carries a hash-kind (as opposed to inline) datum option.
// babbage.BabbageTransactionOutputDatumOption exposes no typed accessors, so
// this decodes its own CBOR representation back into the [kind, payload]
// shape used to construct it in NewDatumOptionHash/NewDatumOptionInline.
func datumOptionHash(out common.TransactionOutput) (common.Blake2b256, bool, error) {
	bo, ok := out.(*babbage.BabbageTransactionOutput)
	if !ok || bo == nil || bo.DatumOption == nil {
		return common.Blake2b256{}, false, nil
	}
	raw, err := cbor.Encode(bo.DatumOption)
	if err != nil {
		return common.Blake2b256{}, false, err
	}
	var decoded []cbor.RawMessage
	if err := cbor.Decode(raw, &decoded); err != nil {
		return common.Blake2b256{}, false, err
	}
	if len(decoded) != 2 {
		return common.Blake2b256{}, false, fmt.Errorf("unexpected datum option shape")
	}
	var kind int
	if err := cbor.Decode(decoded[0], &kind); err != nil {
		return common.Blake2b256{}, false, err
	}
	if kind != 0 {
		return common.Blake2b256{}, false, nil
	}
	var hash common.Blake2b256
	if err := cbor.Decode(decoded[1], &hash); err != nil {
		return common.Blake2b256{}, false, err
	}
	return hash, true, nil
}

// assignRedeemerIndexes sets each script witness's redeemer index to the
// position of its utxo in sortedInputs, per spec.md 4.6, and returns the
// resulting keyed redeemer map used for the script-data hash and witness set.
func (b *Builder) assignRedeemerIndexes(sortedInputs []common.Utxo) map[common.RedeemerKey]common.RedeemerValue {
	result := make(map[common.RedeemerKey]common.RedeemerValue, len(b.scriptWitnesses))
	for i, u := range sortedInputs {
		sw, ok := b.scriptWitnesses[utxoRef(u)]
		if !ok {
			continue
		}
		sw.redeemer.Index = uint32(i)
		key := common.RedeemerKey{Tag: sw.redeemer.Tag, Index: sw.redeemer.Index}
		result[key] = common.RedeemerValue{Data: sw.redeemer.Data, ExUnits: sw.redeemer.ExUnits}
	}
	return result
}

func (b *Builder) datums() []common.Datum {
	datums := make([]common.Datum, 0, len(b.extraDatums))
	datums = append(datums, b.extraDatums...)
	return datums
}

func (b *Builder) plutusV1ScriptSlice() []common.PlutusV1Script {
	if len(b.plutusV1Scripts) == 0 {
		return nil
	}
	out := make([]common.PlutusV1Script, 0, len(b.plutusV1Scripts))
	for _, s := range b.plutusV1Scripts {
		out = append(out, s)
	}
	return out
}

func (b *Builder) plutusV2ScriptSlice() []common.PlutusV2Script {
	if len(b.plutusV2Scripts) == 0 {
		return nil
	}
	out := make([]common.PlutusV2Script, 0, len(b.plutusV2Scripts))
	for _, s := range b.plutusV2Scripts {
		out = append(out, s)
	}
	return out
}

func (b *Builder) plutusV3ScriptSlice() []common.PlutusV3Script {
	if len(b.plutusV3Scripts) == 0 {
		return nil
	}
	out := make([]common.PlutusV3Script, 0, len(b.plutusV3Scripts))
	for _, s := range b.plutusV3Scripts {
		out = append(out, s)
	}
	return out
}

// toShelleyInput converts a common.Utxo's input-ref to the concrete Shelley
// input type the Conway transaction body carries, matching how backend/
// implementations already construct shelley.ShelleyTransactionInput for
// their UTxOs.
func toShelleyInput(u common.Utxo) shelley.ShelleyTransactionInput {
	return shelley.ShelleyTransactionInput{
		TxId:        u.Id.Id(),
		OutputIndex: u.Id.Index(),
	}
}

func toShelleyInputs(utxos []common.Utxo) []shelley.ShelleyTransactionInput {
	out := make([]shelley.ShelleyTransactionInput, len(utxos))
	for i, u := range utxos {
		out[i] = toShelleyInput(u)
	}
	return out
}

// assembleBody builds the Conway transaction body from the Builder's current
// state and sortedInputs, setting fee/ttl/mint/collateral/etc. fields.
func (b *Builder) assembleBody(sortedInputs []common.Utxo, scriptDataHash *common.Blake2b256) conway.ConwayTransactionBody {
	body := conway.ConwayTransactionBody{
		TxInputs:  conway.NewConwayTransactionInputSet(toShelleyInputs(sortedInputs)),
		TxOutputs: b.outputs,
		TxFee:     b.fee,
	}
	if b.ttl != nil {
		body.Ttl = *b.ttl
	}
	if b.validityStart != nil {
		body.TxValidityIntervalStart = *b.validityStart
	}
	body.TxMint = b.mint
	if len(b.collaterals) > 0 {
		body.TxCollateral = cbor.NewSetType(toShelleyInputs(b.collaterals), true)
	}
	if len(b.requiredSigners) > 0 {
		body.TxRequiredSigners = cbor.NewSetType(b.requiredSigners, true)
	}
	netId := b.cc.NetworkId()
	body.TxNetworkId = &netId
	body.TxScriptDataHash = scriptDataHash
	if b.auxiliaryData != nil {
		if hash, err := b.auxiliaryData.Hash(); err == nil {
			body.TxAuxDataHash = &hash
		}
	}
	return body
}

// Build runs the Selection Driver (spec.md 4.5) and the change+fee fixpoint
// (spec.md 4.4), sorts inputs, assigns redeemer indices, and returns the
// assembled TransactionBody. On any error the Builder's mutable state
// (outputs, fee, inputs) is restored to its pre-Build snapshot, so a failed
// Build leaves the Builder usable for a corrected retry (spec.md 5, 7).
func (b *Builder) Build(changeAddress *common.Address) (*TransactionBody, error) {
	if b.err != nil {
		return nil, b.err
	}

	outputsSnapshot := append([]babbage.BabbageTransactionOutput(nil), b.outputs...)
	inputsSnapshot := append([]common.Utxo(nil), b.inputs...)
	feeSnapshot := b.fee

	tb, err := b.build(changeAddress)
	if err != nil {
		b.outputs = outputsSnapshot
		b.inputs = inputsSnapshot
		b.fee = feeSnapshot
		return nil, err
	}
	return tb, nil
}

func (b *Builder) build(changeAddress *common.Address) (*TransactionBody, error) {
	if hasOverlap(b.inputs, b.excludedInputs) {
		return nil, fmt.Errorf("%w: utxo present in both inputs and excluded inputs", ErrTransactionBuilder)
	}

	// Selection Driver (spec.md 4.5): resolve unfulfilled demand against the
	// declared outputs before any fee is known.
	requested := Value{}
	for _, out := range b.outputs {
		v := ValueFromMaryValue(out.OutputAmount)
		sum, err := requested.Add(v)
		if err != nil {
			return nil, err
		}
		requested = sum
	}
	selected := Value{}
	for _, u := range b.inputs {
		sum, err := selected.Add(valueFromUtxo(u))
		if err != nil {
			return nil, err
		}
		selected = sum
	}
	unfulfilled := unfulfilledAmount(requested, selected)
	if !unfulfilled.IsEmpty() {
		excluded := excludedRefSet(b.inputs, b.excludedInputs)
		pool, err := CandidatePool(b.cc, b.inputAddresses, excluded)
		if err != nil {
			return nil, err
		}
		selectors := b.selectors
		if len(selectors) == 0 {
			selectors = DefaultSelectors()
		}
		requestedVal := valueToRequested(unfulfilled)
		var newlySelected []common.Utxo
		var selErr error
		for i, sel := range selectors {
			newlySelected, selErr = sel.Select(pool, requestedVal)
			if selErr == nil {
				b.logger.Debugw("selector succeeded", "index", i)
				break
			}
			b.logger.Infow("selector failed, trying next", "index", i, "error", selErr)
		}
		if selErr != nil {
			return nil, fmt.Errorf("%w: all utxo selectors failed", ErrUTxOSelection)
		}
		b.inputs = append(b.inputs, newlySelected...)
	}

	sortedInputs := SortInputs(b.inputs)

	pp, err := b.cc.ProtocolParams()
	if err != nil {
		return nil, fmt.Errorf("read protocol params: %w", err)
	}

	outputsSnapshot := append([]babbage.BabbageTransactionOutput(nil), b.outputs...)

	if changeAddress != nil {
		maxFee, err := b.cc.MaxTxFee()
		if err != nil {
			return nil, fmt.Errorf("read max tx fee: %w", err)
		}
		b.fee = maxFee
		changeOuts, err := CalcChange(maxFee, sortedInputs, b.outputs, b.mint, *changeAddress, pp, false)
		if err != nil {
			return nil, err
		}
		b.outputs = append(append([]babbage.BabbageTransactionOutput(nil), outputsSnapshot...), changeOuts...)
	}

	redeemerMap := b.assignRedeemerIndexes(sortedInputs)
	datums := b.datums()
	scriptDataHash, err := ComputeScriptDataHash(redeemerMap, datums, pp.CostModels)
	if err != nil {
		return nil, err
	}

	body := b.assembleBody(sortedInputs, scriptDataHash)
	ws := assembleWitnessSet(
		b.nativeScripts, b.commonNativeScripts,
		b.plutusV1ScriptSlice(), b.plutusV2ScriptSlice(), b.plutusV3ScriptSlice(),
		datums, redeemerMap,
	)

	vkeyCount := fakeVkeyWitnessCount(append(sortedInputs, b.collaterals...), b.nativeScripts, b.requiredSigners)
	actualFee, err := EstimateFee(pp, body, ws, vkeyCount)
	if err != nil {
		return nil, err
	}

	if changeAddress != nil {
		b.outputs = outputsSnapshot
		b.fee = uint64(actualFee) //nolint:gosec // EstimateFee never returns a negative fee
		changeOuts, err := CalcChange(b.fee, sortedInputs, b.outputs, b.mint, *changeAddress, pp, true)
		if err != nil {
			return nil, err
		}
		b.outputs = append(append([]babbage.BabbageTransactionOutput(nil), outputsSnapshot...), changeOuts...)
	} else {
		b.fee = uint64(actualFee) //nolint:gosec // EstimateFee never returns a negative fee
	}
	b.inputs = sortedInputs

	finalBody := b.assembleBody(sortedInputs, scriptDataHash)
	finalBytes, err := cbor.Encode(&finalBody)
	if err != nil {
		return nil, fmt.Errorf("encode final body: %w", err)
	}
	if pp.MaxTxSize > 0 && len(finalBytes) > pp.MaxTxSize {
		return nil, fmt.Errorf("%w: final transaction size (%d) exceeds max_tx_size (%d)", ErrInvalidTransaction, len(finalBytes), pp.MaxTxSize)
	}

	return &TransactionBody{
		body:                finalBody,
		nativeScripts:       b.nativeScripts,
		commonNativeScripts: b.commonNativeScripts,
		plutusV1Scripts:     b.plutusV1ScriptSlice(),
		plutusV2Scripts:     b.plutusV2ScriptSlice(),
		plutusV3Scripts:     b.plutusV3ScriptSlice(),
		datums:              datums,
		redeemers:           redeemerMap,
		auxiliaryData:       b.auxiliaryData,
		vkeyWitnessCount:    vkeyCount,
	}, nil
}

// BuildWitnessSet runs Build and returns its witness set without vkey
// witnesses, matching spec.md 4.6's build_witness_set contract.
func (b *Builder) BuildWitnessSet(changeAddress *common.Address) (conway.ConwayTransactionWitnessSet, error) {
	tb, err := b.Build(changeAddress)
	if err != nil {
		return conway.ConwayTransactionWitnessSet{}, err
	}
	return tb.WitnessSet(), nil
}

// BuildAndSign calls Build, then signs the resulting body's hash with every
// signer in signers, appending one VkeyWitness per signature, matching
// spec.md 4.6's build_and_sign.
func (b *Builder) BuildAndSign(signers []Wallet, changeAddress *common.Address) (*Transaction, error) {
	tb, err := b.Build(changeAddress)
	if err != nil {
		return nil, err
	}
	hash, err := tb.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash transaction body: %w", err)
	}
	witnesses := make([]common.VkeyWitness, 0, len(signers))
	for _, signer := range signers {
		w, err := signer.SignTxBody(hash)
		if err != nil {
			return nil, fmt.Errorf("sign transaction body: %w", err)
		}
		witnesses = append(witnesses, w)
	}
	return &Transaction{Body: *tb, VkeyWitnesses: witnesses}, nil
}
