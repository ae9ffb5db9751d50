package sshmux

// Compressor is the compression collaborator named in spec §6: a pair of
// symmetric transforms applied to the decrypted packet payload before
// dispatch (Decompress) and to the plaintext payload before sealing
// (Compress). Concrete implementations (e.g. ciphers.Snappy) live outside
// this package; NullCompressor is the identity transform used whenever
// compression is disabled.
type Compressor interface {
	// Compress returns the compressed form of src. Implementations may
	// reuse src's backing array only if it does not alias caller-owned
	// memory that will be reused before the result is consumed.
	Compress(src []byte) []byte

	// Decompress expands src, using scratch as a reusable destination
	// buffer when it has enough capacity.
	Decompress(src, scratch []byte) ([]byte, error)
}

// NullCompressor performs no transformation; Decompress and Compress both
// return their input unchanged.
type NullCompressor struct{}

func (NullCompressor) Compress(src []byte) []byte { return src }

func (NullCompressor) Decompress(src, _ []byte) ([]byte, error) { return src, nil }
