package policy

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/hobeen-kim/postgres-mcp/internal/telemetry"
)

// DefaultCacheSize bounds the per-process decision cache.
const DefaultCacheSize = 1024

// Gate is the process-level front end of the classifier: one immutable access
// mode, an LRU of prior decisions keyed by statement text, decision logging
// and counters. Classify stays pure underneath; Check is what the serving
// surfaces call. Safe for concurrent use.
type Gate struct {
	mode  AccessMode
	cache *lru.Cache[string, Decision]
}

// NewGate builds a gate for mode. cacheSize values below one fall back to
// DefaultCacheSize.
func NewGate(mode AccessMode, cacheSize int) (*Gate, error) {
	if cacheSize < 1 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Decision](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Gate{mode: mode, cache: cache}, nil
}

// Mode returns the access mode the gate enforces.
func (g *Gate) Mode() AccessMode { return g.mode }

// Check classifies sql under the gate's mode. Repeated statements skip the
// parser via the cache but still count in metrics.
func (g *Gate) Check(sql string) Decision {
	d, cached := g.cache.Get(sql)
	if !cached {
		d = Classify(sql, g.mode)
		g.cache.Add(sql, d)
	}
	telemetry.Decisions.WithLabelValues(g.mode.String(), d.Kind.String(), d.Outcome()).Inc()

	if cached {
		return d
	}
	if d.Allowed {
		log.Debug().
			Str("mode", g.mode.String()).
			Str("kind", d.Kind.String()).
			Msg("statement allowed")
	} else {
		log.Info().
			Str("mode", g.mode.String()).
			Str("kind", d.Kind.String()).
			Str("reason", d.Reason).
			Msg("statement denied")
	}
	return d
}
