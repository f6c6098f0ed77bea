package hashing

import (
	"github.com/zeebo/xxh3"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// NewXXH3Hasher returns the 128-bit XXH3 hasher. It is fast but not
// collision resistant, so it ranks lowest by default.
func NewXXH3Hasher(preference int) guardian.Hasher {
	return &xxh3Hasher{preference: preference}
}

type xxh3Hasher struct {
	preference int
}

func (h *xxh3Hasher) Algorithm() model.HashAlgorithm { return model.AlgorithmXXH3 }
func (h *xxh3Hasher) Preference() int                { return h.preference }

func (h *xxh3Hasher) CanVerify(fh model.FileHash) bool {
	return fh.Algorithm == model.AlgorithmXXH3
}

func (h *xxh3Hasher) NewPendingHash() guardian.PendingHash {
	return &pendingXXH3{h: xxh3.New()}
}

type pendingXXH3 struct {
	h *xxh3.Hasher
}

func (p *pendingXXH3) Write(b []byte) (int, error) { return p.h.Write(b) }

func (p *pendingXXH3) Finalize() model.FileHash {
	sum := p.h.Sum128().Bytes()
	return model.NewFileHash(model.AlgorithmXXH3, sum[:])
}
