package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when the remote store cannot be reached.
var ErrUnavailable = errors.New("remote store unavailable")

// Document is a schemaless remote record.
type Document map[string]any

// FindQuery orders and bounds a FindAll call. Limit 0 means no limit.
type FindQuery struct {
	SortField string
	Ascending bool
	Limit     int
}

// Remote is the long-term document store shared by every chain.
type Remote interface {
	// Available is a cheap readiness check; implementations reconnect lazily
	// on a bounded interval.
	Available(ctx context.Context) bool
	UpsertMany(ctx context.Context, collection string, docs []Document, uniqueKeys []string) error
	FindAll(ctx context.Context, collection string, q FindQuery) ([]Document, error)
	// GetKV returns found=false when the key does not exist.
	GetKV(ctx context.Context, collection, key string) (doc Document, found bool, err error)
	SetKV(ctx context.Context, collection, key string, value Document) error
}

// DocKey joins the unique key values of doc. It fails when one is missing.
func DocKey(doc Document, uniqueKeys []string) (string, error) {
	if len(uniqueKeys) == 0 {
		return "", fmt.Errorf("no unique keys")
	}
	parts := make([]string, 0, len(uniqueKeys))
	for _, k := range uniqueKeys {
		v, ok := doc[k]
		if !ok || v == nil {
			return "", fmt.Errorf("document missing unique key %q", k)
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "|"), nil
}

// CompareValues orders two document field values. Numbers compare
// numerically, everything else by its string form.
func CompareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// DocUint reads a non-negative integer field written by any backend.
func DocUint(doc Document, key string) (uint64, bool) {
	switch v := doc[key].(type) {
	case uint64:
		return v, true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	default:
		f, ok := toFloat(v)
		if !ok || f < 0 || f >= math.MaxUint64 || f != math.Trunc(f) {
			return 0, false
		}
		return uint64(f), true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
