package ciphers

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/xtaci/sshmux/sshmux"
)

// Snappy implements sshmux.Compressor using block snappy, the same
// compression the teacher (kcptun) wraps stream connections with in
// std/comp.go — here applied per-packet rather than per-stream, since the
// core hands the compressor one decrypted payload at a time.
type Snappy struct{}

var _ sshmux.Compressor = Snappy{}

// Compress implements sshmux.Compressor.
func (Snappy) Compress(src []byte) []byte {
	return snappy.Encode(nil, src)
}

// Decompress implements sshmux.Compressor. scratch is reused as the
// destination buffer when it has enough capacity, avoiding an allocation on
// the hot path.
func (Snappy) Decompress(src, scratch []byte) ([]byte, error) {
	out, err := snappy.Decode(scratch[:cap(scratch)], src)
	if err != nil {
		return nil, errors.Wrap(err, "ciphers: snappy decompress")
	}
	return out, nil
}
