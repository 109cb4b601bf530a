package db

import (
	"slices"
	"strings"
)

// ChunkedMap calls fn once per chunk of at most size ids and concatenates
// the results. A non-positive size uses DefaultChunkSize.
func ChunkedMap[T any](ids []int64, size int, fn func(chunk []int64) ([]T, error)) ([]T, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out []T
	for chunk := range slices.Chunk(ids, size) {
		res, err := fn(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// chunkedExec calls fn once per chunk and stops at the first error.
func chunkedExec(ids []int64, size int, fn func(chunk []int64) error) error {
	_, err := ChunkedMap(ids, size, func(chunk []int64) ([]struct{}, error) {
		return nil, fn(chunk)
	})
	return err
}

// inClause returns "?,?,?" for n placeholders and the ids as arguments.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// Unique returns ids without duplicates, keeping first occurrences.
func Unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
