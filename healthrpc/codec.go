package healthrpc

import (
	"encoding/json"
	"fmt"

	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/protobuf/proto"
)

func init() {
	grpcEncoding.RegisterCodec(codec{})
}

// jsonMsg is satisfied by the valo.Catalog messages.
type jsonMsg interface {
	isCatalogMsg()
}

func (*HealthRequest) isCatalogMsg()  {}
func (*HealthResponse) isCatalogMsg() {}

// codec replaces the "proto" codec: valo.Catalog messages go through JSON,
// protobuf messages through proto.Marshal/Unmarshal.
type codec struct{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(jsonMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("healthrpc codec: unsupported message type %T", v)
}

func (codec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(jsonMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("healthrpc codec: unsupported message type %T", v)
}
