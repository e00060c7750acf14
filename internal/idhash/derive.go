package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"backtest-lab/internal/domain"
)

// Identity is the derived identity of one run.
type Identity struct {
	ConfigHash string           // SHA256 hex over canonical config bytes
	RunHash    string           // SHA256 hex over (config_hash, dataset_digest)
	RunID      string           // base58 of the first 16 RunHash bytes
	SeedTree   map[string]int64 // scope name -> sub-seed
}

// seedScopes lists every scope with a derived sub-seed.
var seedScopes = []string{
	domain.SeedScopeData,
	domain.SeedScopeFeature,
	domain.SeedScopeExecution,
	domain.SeedScopeValidation,
}

// Derive computes the full run identity from a config and the dataset
// content digest. Canonicalization failures surface as ConfigError
// before any computation begins.
func Derive(cfg *domain.RunConfig, datasetDigest string) (*Identity, error) {
	canonical, err := CanonicalBytes(cfg)
	if err != nil {
		return nil, err
	}

	configSum := sha256.Sum256(canonical)
	configHash := hex.EncodeToString(configSum[:])

	runSum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", configHash, datasetDigest)))
	runHash := hex.EncodeToString(runSum[:])

	tree := make(map[string]int64, len(seedScopes))
	for _, scope := range seedScopes {
		tree[scope] = SubSeed(cfg.RunSeed, scope)
	}

	return &Identity{
		ConfigHash: configHash,
		RunHash:    runHash,
		RunID:      base58.Encode(runSum[:16]),
		SeedTree:   tree,
	}, nil
}

// SubSeed derives the sub-seed for one scope as a stable hash of
// (root_seed, scope_name). The first 8 digest bytes are interpreted as
// a big-endian integer with the sign bit cleared so sub-seeds stay
// non-negative.
func SubSeed(rootSeed int64, scope string) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", rootSeed, scope)))
	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v &^ (1 << 63))
}

// DigestBytes returns the SHA256 hex digest of arbitrary artifact
// bytes.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
