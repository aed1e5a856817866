package codec

import "encoding/json"

// JSON serializes values with encoding/json. The zero value is ready to
// use. Map keys are sorted by the encoder, so JSON is safe for key-building
// as long as the argument type round-trips losslessly.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
