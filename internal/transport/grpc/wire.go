package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сообщения сервиса на проводе - google.protobuf.Struct (стандартный proto-кодек gRPC).
// Поля Struct совпадают с JSON-представлением dto: Struct <-> JSON идёт через protojson,
// JSON <-> dto - через теги json. Числа в Struct - double, целые до 2^53 переносятся точно.

// toStruct упаковывает dto в Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("wire: struct from %T: %w", v, err)
	}

	return out, nil
}

// fromStruct распаковывает Struct в dto. Пустое сообщение даёт нулевое значение.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil || len(s.GetFields()) == 0 {
		return nil
	}

	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("wire: struct to json: %w", err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("wire: unmarshal %T: %w", v, err)
	}

	return nil
}
