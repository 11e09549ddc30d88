package database

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// encodingVersion is written as the first byte of every persisted value.
const encodingVersion byte = 1

// encode produces the versioned binary form of a value for storage.
func encode(v any) ([]byte, error) {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}

	return append([]byte{encodingVersion}, data...), nil
}

// decode reads a value produced by encode.
func decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrStorageFailure)
	}

	if data[0] != encodingVersion {
		return fmt.Errorf("%w: unknown encoding version %d", ErrStorageFailure, data[0])
	}

	if err := rlp.DecodeBytes(data[1:], v); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	return nil
}
