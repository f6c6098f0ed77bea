// Package encoding serializes file trees and transport messages.
package encoding

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// YAMLEncoder encodes values as YAML documents. Decoding is strict:
// unknown fields are rejected.
type YAMLEncoder struct{}

// NewYAMLEncoder returns the default encoding service.
func NewYAMLEncoder() *YAMLEncoder { return &YAMLEncoder{} }

func (YAMLEncoder) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (YAMLEncoder) Decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %T: %v: %w", v, err, model.ErrDecode)
	}
	return nil
}

var _ guardian.EncodingService = (*YAMLEncoder)(nil)
