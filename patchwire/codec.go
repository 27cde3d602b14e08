package patchwire

// CodecName is the connect codec name; the content type becomes
// application/cbor.
const CodecName = "cbor"

// Codec plugs the canonical CBOR encoding into connect handlers and
// clients via connect.WithCodec.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
