package txbuilder

import (
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// NativeScriptType tags the variant held by a NativeScript.
type NativeScriptType int

const (
	NativeScriptPubkey NativeScriptType = iota
	NativeScriptAll
	NativeScriptAny
	NativeScriptNofK
	NativeScriptInvalidBefore
	NativeScriptInvalidHereafter
)

// NativeScript is an introspectable multi-signature / timelock script tree.
// gouroboros's common.NativeScript only round-trips through CBOR and exposes
// no accessors, so the fake-witness DFS (spec'd recursion over Pubkey/All/Any
// nodes) walks this local tree instead; ToCommon converts a built tree to the
// ledger-native form for attachment to a witness set or script reference.
type NativeScript struct {
	Type    NativeScriptType
	KeyHash common.Blake2b224
	Scripts []NativeScript
	N       uint
	Slot    uint64
}

// NewNativeScriptPubkey creates a script satisfied by a single key signature.
func NewNativeScriptPubkey(keyHash common.Blake2b224) NativeScript {
	return NativeScript{Type: NativeScriptPubkey, KeyHash: keyHash}
}

// NewNativeScriptAll creates a script requiring every child script to pass.
func NewNativeScriptAll(scripts []NativeScript) NativeScript {
	return NativeScript{Type: NativeScriptAll, Scripts: scripts}
}

// NewNativeScriptAny creates a script requiring at least one child script to pass.
func NewNativeScriptAny(scripts []NativeScript) NativeScript {
	return NativeScript{Type: NativeScriptAny, Scripts: scripts}
}

// NewNativeScriptNofK creates a script requiring n of the given child scripts to pass.
func NewNativeScriptNofK(n uint, scripts []NativeScript) (NativeScript, error) {
	if len(scripts) == 0 {
		return NativeScript{}, fmt.Errorf("%w: n-of-k script requires at least one child", ErrInvalidArgument)
	}
	if n == 0 || n > uint(len(scripts)) {
		return NativeScript{}, fmt.Errorf("%w: n (%d) must be between 1 and %d", ErrInvalidArgument, n, len(scripts))
	}
	return NativeScript{Type: NativeScriptNofK, N: n, Scripts: scripts}, nil
}

// NewNativeScriptInvalidBefore creates a script valid only at or after slot.
func NewNativeScriptInvalidBefore(slot uint64) NativeScript {
	return NativeScript{Type: NativeScriptInvalidBefore, Slot: slot}
}

// NewNativeScriptInvalidHereafter creates a script valid only before slot.
func NewNativeScriptInvalidHereafter(slot uint64) NativeScript {
	return NativeScript{Type: NativeScriptInvalidHereafter, Slot: slot}
}

// WalkPubkeyHashes returns every key hash reachable from a ScriptPubkey leaf
// under n, matching pycardano's _native_scripts_vkey_hashes DFS: Pubkey
// leaves contribute their key hash, All, Any and NofK nodes recurse through
// their Scripts slice, and timelock nodes carry no key material.
func (n NativeScript) WalkPubkeyHashes() []common.Blake2b224 {
	var hashes []common.Blake2b224
	switch n.Type {
	case NativeScriptPubkey:
		hashes = append(hashes, n.KeyHash)
	case NativeScriptAll, NativeScriptAny, NativeScriptNofK:
		for _, child := range n.Scripts {
			hashes = append(hashes, child.WalkPubkeyHashes()...)
		}
	}
	return hashes
}

// ToCommon converts n to the ledger-native NativeScript, recursing into
// children first.
func (n NativeScript) ToCommon() (common.NativeScript, error) {
	switch n.Type {
	case NativeScriptPubkey:
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type uint
			Hash []byte
		}{Type: 0, Hash: n.KeyHash.Bytes()})
	case NativeScriptAll:
		children, err := n.childrenToCommon()
		if err != nil {
			return common.NativeScript{}, err
		}
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type    uint
			Scripts []common.NativeScript
		}{Type: 1, Scripts: children})
	case NativeScriptAny:
		children, err := n.childrenToCommon()
		if err != nil {
			return common.NativeScript{}, err
		}
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type    uint
			Scripts []common.NativeScript
		}{Type: 2, Scripts: children})
	case NativeScriptNofK:
		children, err := n.childrenToCommon()
		if err != nil {
			return common.NativeScript{}, err
		}
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type    uint
			N       uint
			Scripts []common.NativeScript
		}{Type: 3, N: n.N, Scripts: children})
	case NativeScriptInvalidBefore:
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type uint
			Slot uint64
		}{Type: 4, Slot: n.Slot})
	case NativeScriptInvalidHereafter:
		return nativeScriptFromInner(struct {
			cbor.StructAsArray
			Type uint
			Slot uint64
		}{Type: 5, Slot: n.Slot})
	default:
		return common.NativeScript{}, fmt.Errorf("%w: unknown native script type %d", ErrInvalidArgument, n.Type)
	}
}

func (n NativeScript) childrenToCommon() ([]common.NativeScript, error) {
	children := make([]common.NativeScript, 0, len(n.Scripts))
	for _, child := range n.Scripts {
		cs, err := child.ToCommon()
		if err != nil {
			return nil, err
		}
		children = append(children, cs)
	}
	return children, nil
}

func nativeScriptFromInner(inner any) (common.NativeScript, error) {
	cborBytes, err := cbor.Encode(inner)
	if err != nil {
		return common.NativeScript{}, fmt.Errorf("encode native script: %w", err)
	}
	var ns common.NativeScript
	if err := ns.UnmarshalCBOR(cborBytes); err != nil {
		return common.NativeScript{}, fmt.Errorf("unmarshal native script: %w", err)
	}
	return ns, nil
}
