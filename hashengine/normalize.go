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

package hashengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrIntegrityViolation is wrapped by every EncodingError
var ErrIntegrityViolation = errors.New("integrity violation")

// EncodingError reports a record value that has no canonical form
type EncodingError struct {
	Path   string
	Value  any
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: cannot encode record: %s", ErrIntegrityViolation, e.Reason)
	}
	return fmt.Sprintf(
		"%s: cannot encode field %q (%T): %s",
		ErrIntegrityViolation,
		e.Path,
		e.Value,
		e.Reason,
	)
}

func (e *EncodingError) Unwrap() error {
	return ErrIntegrityViolation
}

// Normalize converts v to its canonical form: integers become int64 or
// uint64, timestamps become RFC3339Nano strings in UTC, pointers are
// dereferenced and json.Number values are parsed as integers. Values outside
// the supported set return an *EncodingError
func Normalize(v any) (any, error) {
	return normalizeValue("", v)
}

func normalizeMap(path string, m map[string]any) (map[string]any, error) {
	ret := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := normalizeValue(joinPath(path, k), v)
		if err != nil {
			return nil, err
		}
		ret[k] = nv
	}
	return ret, nil
}

func normalizeValue(path string, v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case string:
		return tv, nil
	case *string:
		if tv == nil {
			return nil, nil
		}
		return *tv, nil
	case int:
		return int64(tv), nil
	case int8:
		return int64(tv), nil
	case int16:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case int64:
		return tv, nil
	case *int64:
		if tv == nil {
			return nil, nil
		}
		return *tv, nil
	case uint:
		return uint64(tv), nil
	case uint8:
		return uint64(tv), nil
	case uint16:
		return uint64(tv), nil
	case uint32:
		return uint64(tv), nil
	case uint64:
		return tv, nil
	case *uint64:
		if tv == nil {
			return nil, nil
		}
		return *tv, nil
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(tv.String(), 10, 64); err == nil {
			return u, nil
		}
		return nil, &EncodingError{
			Path:   path,
			Value:  v,
			Reason: "only integer numbers are supported",
		}
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if tv == nil {
			return nil, nil
		}
		return tv.UTC().Format(time.RFC3339Nano), nil
	case map[string]any:
		return normalizeMap(path, tv)
	default:
		return nil, &EncodingError{
			Path:   path,
			Value:  v,
			Reason: "unsupported value type",
		}
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
