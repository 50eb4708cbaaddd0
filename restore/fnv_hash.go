package restore

import (
	"encoding/base64"
	"encoding/binary"
)

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

// FnvHash64 is an FNV-1a 64-bit digest. It implements io.Writer so encoders
// can stream into it.
type FnvHash64 struct {
	hash uint64
}

// NewFnvHash64 creates a new FNV-1a 64-bit hash.
func NewFnvHash64() *FnvHash64 {
	return &FnvHash64{hash: fnvOffset}
}

// Write feeds data into the hash. It never fails.
func (f *FnvHash64) Write(data []byte) (int, error) {
	for _, b := range data {
		f.hash = (f.hash ^ uint64(b)) * fnvPrime
	}
	return len(data), nil
}

// Sum64 returns the current digest.
func (f *FnvHash64) Sum64() uint64 {
	return f.hash
}

// GetHash returns the little-endian digest encoded as base64.
func (f *FnvHash64) GetHash() string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], f.hash)
	return base64.StdEncoding.EncodeToString(b[:])
}
