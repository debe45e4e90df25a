package arkrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the name jsonCodec registers under in grpc's codec
// registry; NewGRPCServer forces it as the codec of every server RPC. The
// wire messages above are plain structs rather than protoc-generated
// ones (see DESIGN.md), so the usual "proto" codec has nothing to
// marshal; jsonCodec lets grpc's framing, multiplexing and interceptor
// chain be reused unchanged with an ordinary JSON body.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("arkrpc: marshaling %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("arkrpc: unmarshaling into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
