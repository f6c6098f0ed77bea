package guardian

// EncodingService turns values (file trees, transport messages) into bytes
// and back. Decode failures wrap model.ErrDecode.
type EncodingService interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}
