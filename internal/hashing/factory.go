package hashing

import (
	"fmt"

	"guardian-go/internal/config"
	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// NewHasher creates a hasher by algorithm name with the given preference.
func NewHasher(algorithm model.HashAlgorithm, preference int) (guardian.Hasher, error) {
	switch algorithm {
	case model.AlgorithmBlake2b512:
		return NewBlake2bHasher(preference), nil
	case model.AlgorithmSHA256:
		return NewSHA256Hasher(preference), nil
	case model.AlgorithmXXH3:
		return NewXXH3Hasher(preference), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %s", algorithm)
	}
}

func defaultPreference(algorithm model.HashAlgorithm) int {
	switch algorithm {
	case model.AlgorithmBlake2b512:
		return PreferenceBlake2b
	case model.AlgorithmSHA256:
		return PreferenceSHA256
	default:
		return PreferenceXXH3
	}
}

// NewDefaultHashService registers every built-in hasher with its default
// preference, so BLAKE2b-512 is used for new content.
func NewDefaultHashService() *guardian.HashService {
	return guardian.NewHashService(
		NewBlake2bHasher(PreferenceBlake2b),
		NewSHA256Hasher(PreferenceSHA256),
		NewXXH3Hasher(PreferenceXXH3),
	)
}

// NewHashServiceFromConfig registers the configured algorithms. An empty
// list means all built-in hashers.
func NewHashServiceFromConfig(cfg config.HashingConfig) (*guardian.HashService, error) {
	if len(cfg.Algorithms) == 0 {
		return NewDefaultHashService(), nil
	}

	hashers := make([]guardian.Hasher, 0, len(cfg.Algorithms))
	for _, name := range cfg.Algorithms {
		algorithm := model.HashAlgorithm(name)
		preference := defaultPreference(algorithm)
		if p, ok := cfg.Preferences[name]; ok {
			preference = p
		}
		h, err := NewHasher(algorithm, preference)
		if err != nil {
			return nil, err
		}
		hashers = append(hashers, h)
	}
	return guardian.NewHashService(hashers...), nil
}
