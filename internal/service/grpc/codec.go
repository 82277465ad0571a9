package grpcsvc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName — content-subtype back-office API: application/grpc+json.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// JSONCodec кодирует сообщения в JSON. Protobuf-сообщения идут через
// protojson, остальные типы через encoding/json.
type JSONCodec struct{}

// Marshal кодирует v.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	return json.Marshal(v)
}

// Unmarshal декодирует data в v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, msg)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Name возвращает content-subtype кодека.
func (JSONCodec) Name() string {
	return CodecName
}
