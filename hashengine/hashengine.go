// Copyright 2025 Blink Labs Software
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

// Package hashengine produces deterministic digests of structured records.
//
// Records are maps of string keys to a closed set of values: strings,
// integers, time.Time, nil and nested maps. Values are normalized and
// encoded as deterministic CBOR before being hashed, so two logically equal
// records always produce the same digest regardless of how they were built.
package hashengine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

const DigestSize = 32

type Algorithm string

const (
	AlgorithmSHA256     Algorithm = "sha256"
	AlgorithmBlake2b256 Algorithm = "blake2b-256"

	DefaultAlgorithm = AlgorithmSHA256
)

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// ParseAlgorithm maps a configured algorithm name to an Algorithm. An empty
// name selects the default
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBlake2b256, "blake2b":
		return AlgorithmBlake2b256, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
}

type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) Bytes() []byte {
	return d[:]
}

// ParseDigest decodes a hex rendered digest
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf(
			"invalid digest length: expected %d bytes, got %d",
			DigestSize,
			len(b),
		)
	}
	copy(d[:], b)
	return d, nil
}

type Engine struct {
	algorithm Algorithm
	encMode   cbor.EncMode
}

// New returns an Engine using the given algorithm
func New(algorithm Algorithm) (*Engine, error) {
	switch algorithm {
	case AlgorithmSHA256, AlgorithmBlake2b256:
	case "":
		algorithm = DefaultAlgorithm
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create CBOR encoder: %w", err)
	}
	return &Engine{
		algorithm: algorithm,
		encMode:   encMode,
	}, nil
}

// Default returns an Engine using DefaultAlgorithm
func Default() *Engine {
	e, err := New(DefaultAlgorithm)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Algorithm() Algorithm {
	return e.algorithm
}

// Canonical returns the deterministic encoding of record that Digest hashes
func (e *Engine) Canonical(record map[string]any) ([]byte, error) {
	normalized, err := normalizeMap("", record)
	if err != nil {
		return nil, err
	}
	data, err := e.encMode.Marshal(normalized)
	if err != nil {
		return nil, &EncodingError{Reason: err.Error()}
	}
	return data, nil
}

// Digest hashes the canonical encoding of record
func (e *Engine) Digest(record map[string]any) (Digest, error) {
	data, err := e.Canonical(record)
	if err != nil {
		return Digest{}, err
	}
	switch e.algorithm {
	case AlgorithmBlake2b256:
		return blake2b.Sum256(data), nil
	default:
		return sha256.Sum256(data), nil
	}
}

// Hex returns the lowercase hex digest of record
func (e *Engine) Hex(record map[string]any) (string, error) {
	d, err := e.Digest(record)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
