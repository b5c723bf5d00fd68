package protocol

// Params carries per-(type+command) or global serializer configuration
// (spec.md §6 "binary_data_params"). The zero value is a valid empty
// configuration.
type Params map[string]any

// Serializer turns an application payload value into bytes and back. It is
// an external collaborator (spec.md §1, §6): the codec calls it to produce
// the bytes that go on the wire, but never inspects the encoding itself.
type Serializer interface {
	Serialize(v any, params Params) ([]byte, error)
	Unserialize(b []byte, params Params) (any, error)
}
