package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for file names and logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	TableHash Hash
	PlanHash  Hash
)

func (h TableHash) String() string { return Hash(h).String() }
func (h PlanHash) String() string  { return Hash(h).String() }

// ComputeMapHash hashes a string map in key order
func ComputeMapHash(values map[string]string) Hash {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString("=")
		data.WriteString(values[key])
		data.WriteString(";")
	}
	return NewHash([]byte(data.String()))
}

// DeriveSeed derives a per-unit seed from a base seed and a unit key.
// The result depends only on its inputs, never on scheduling order.
func DeriveSeed(baseSeed int64, key string) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", baseSeed, key)))
	return int64(binary.BigEndian.Uint64(sum[:8]) & 0x7fffffffffffffff)
}
