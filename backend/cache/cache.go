package cache

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/dgraph-io/ristretto"

	"github.com/cardano-forge/txbuilder/backend"
)

const (
	protocolParamsKey = "protocol-params"
	genesisParamsKey  = "genesis-params"
)

// CachedChainContext wraps another ChainContext with a bounded, TTL-expiring
// cache for its two hottest read paths: ProtocolParams (called on every
// Builder.Build) and Utxos (called once per input address per selection
// attempt). Unlike an unbounded map keyed by address, a ristretto cache
// evicts under memory pressure, so a long-lived process querying many
// addresses cannot grow this cache without bound.
type CachedChainContext struct {
	inner backend.ChainContext
	ttl   time.Duration
	cache *ristretto.Cache
}

// NewCachedChainContext creates a new cached wrapper around inner. ttl
// governs how long a ProtocolParams/GenesisParams/Utxos entry stays valid;
// maxCost bounds the cache's total tracked cost (ristretto's approximation
// of memory use), defaulting to 1<<24 when zero.
func NewCachedChainContext(inner backend.ChainContext, ttl time.Duration, maxCost int64) (*CachedChainContext, error) {
	if maxCost <= 0 {
		maxCost = 1 << 24
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 100 * 10, // ~10x the number of items we expect to track
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &CachedChainContext{inner: inner, ttl: ttl, cache: c}, nil
}

func utxosCacheKey(address common.Address) string {
	return "utxos:" + address.String()
}

func (c *CachedChainContext) ProtocolParams() (backend.ProtocolParameters, error) {
	if v, ok := c.cache.Get(protocolParamsKey); ok {
		pp := v.(backend.ProtocolParameters) //nolint:forcetypeassert // only this type is ever stored under this key
		return cloneProtocolParameters(pp), nil
	}

	pp, err := c.inner.ProtocolParams()
	if err != nil {
		return pp, err
	}
	c.cache.SetWithTTL(protocolParamsKey, cloneProtocolParameters(pp), 1, c.ttl)
	c.cache.Wait()
	return pp, nil
}

func cloneProtocolParameters(pp backend.ProtocolParameters) backend.ProtocolParameters {
	if pp.CostModels == nil {
		return pp
	}
	cm := make(map[string][]int64, len(pp.CostModels))
	for k, v := range pp.CostModels {
		dup := make([]int64, len(v))
		copy(dup, v)
		cm[k] = dup
	}
	pp.CostModels = cm
	return pp
}

func (c *CachedChainContext) GenesisParams() (backend.GenesisParameters, error) {
	if v, ok := c.cache.Get(genesisParamsKey); ok {
		return v.(backend.GenesisParameters), nil //nolint:forcetypeassert // only this type is ever stored under this key
	}

	gp, err := c.inner.GenesisParams()
	if err != nil {
		return gp, err
	}
	c.cache.SetWithTTL(genesisParamsKey, gp, 1, c.ttl)
	c.cache.Wait()
	return gp, nil
}

func (c *CachedChainContext) NetworkId() uint8 {
	return c.inner.NetworkId()
}

func (c *CachedChainContext) CurrentEpoch() (uint64, error) {
	return c.inner.CurrentEpoch()
}

func (c *CachedChainContext) MaxTxFee() (uint64, error) {
	return c.inner.MaxTxFee()
}

func (c *CachedChainContext) Tip() (uint64, error) {
	return c.inner.Tip()
}

// Utxos is cached per address: repeatedly querying the same input address
// across several selector attempts within one Build call, or across several
// Builds against a slowly-changing wallet, hits the chain once per ttl
// window instead of once per call.
func (c *CachedChainContext) Utxos(address common.Address) ([]common.Utxo, error) {
	key := utxosCacheKey(address)
	if v, ok := c.cache.Get(key); ok {
		cached := v.([]common.Utxo) //nolint:forcetypeassert // only this type is ever stored under this key
		out := make([]common.Utxo, len(cached))
		copy(out, cached)
		return out, nil
	}

	utxos, err := c.inner.Utxos(address)
	if err != nil {
		return utxos, err
	}
	stored := make([]common.Utxo, len(utxos))
	copy(stored, utxos)
	c.cache.SetWithTTL(key, stored, int64(len(stored))+1, c.ttl)
	c.cache.Wait()
	return utxos, nil
}

func (c *CachedChainContext) SubmitTx(txCbor []byte) (common.Blake2b256, error) {
	return c.inner.SubmitTx(txCbor)
}

func (c *CachedChainContext) EvaluateTx(txCbor []byte) (map[common.RedeemerKey]common.ExUnits, error) {
	return c.inner.EvaluateTx(txCbor)
}

func (c *CachedChainContext) UtxoByRef(txHash common.Blake2b256, index uint32) (*common.Utxo, error) {
	return c.inner.UtxoByRef(txHash, index)
}

func (c *CachedChainContext) ScriptCbor(scriptHash common.Blake2b224) ([]byte, error) {
	return c.inner.ScriptCbor(scriptHash)
}
