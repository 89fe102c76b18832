// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/poiesic/photoscan/core"
)

const (
	fieldID     = "id"
	fieldVector = "vector"
	fieldMeta   = "payload"
)

// Map returns the payload as a field map. Zero values are omitted.
func (p Payload) Map() map[string]any {
	m := map[string]any{
		FieldPath:        p.Path,
		FieldDescription: p.Description,
		FieldFolder:      p.Folder,
	}
	if p.Model != "" {
		m[FieldModel] = p.Model
	}
	if !p.GeneratedAt.IsZero() {
		m[FieldGeneratedAt] = p.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// PayloadFromMap is the inverse of Payload.Map. Unknown keys are ignored.
func PayloadFromMap(m map[string]any) Payload {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	p := Payload{
		Path:        str(FieldPath),
		Description: str(FieldDescription),
		Folder:      str(FieldFolder),
		Model:       str(FieldModel),
	}
	if ts := str(FieldGeneratedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.GeneratedAt = t
		}
	}
	return p
}

// MarshalPoint serializes a Point to bytes as a protobuf Struct.
func MarshalPoint(p Point) ([]byte, error) {
	payload, err := structpb.NewStruct(p.Payload.Map())
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrSerializationFailed, err)
	}
	values := make([]*structpb.Value, len(p.Vector))
	for i, v := range p.Vector {
		values[i] = structpb.NewNumberValue(float64(v))
	}
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldID:     structpb.NewStringValue(strconv.FormatUint(uint64(p.ID), 10)),
		fieldVector: structpb.NewListValue(&structpb.ListValue{Values: values}),
		fieldMeta:   structpb.NewStructValue(payload),
	}}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalPoint deserializes a Point from bytes.
func UnmarshalPoint(data []byte) (*Point, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrSerializationFailed)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	idValue, ok := msg.Fields[fieldID]
	if !ok {
		return nil, fmt.Errorf("%w: missing id", ErrSerializationFailed)
	}
	id, err := strconv.ParseUint(idValue.GetStringValue(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}

	p := &Point{ID: core.ID(id)}
	if list := msg.Fields[fieldVector].GetListValue(); list != nil {
		p.Vector = make([]float32, len(list.Values))
		for i, v := range list.Values {
			p.Vector[i] = float32(v.GetNumberValue())
		}
	}
	if meta := msg.Fields[fieldMeta].GetStructValue(); meta != nil {
		p.Payload = PayloadFromMap(meta.AsMap())
	}
	return p, nil
}
