// Package codec defines value (de)serialization for requery. Codecs serve
// two roles: encoding query arguments for key building (which requires a
// deterministic codec, see CBOR) and encoding cached values for persistence.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
