package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as a Content-Subtype with grpc-go's codec
// registry, letting the channel/server negotiate "application/grpc+json"
// without a protoc-generated Marshal/Unmarshal pair.
const codecName = "json"

// jsonCodec implements encoding.Codec by round-tripping every request
// and response as JSON, so rpc.Server can expose CompileRequest/
// Execute Request as plain Go structs rather than protoc-generated
// message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
