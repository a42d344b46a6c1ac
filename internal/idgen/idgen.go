// Package idgen generates backfill run identifiers.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix marks an identifier as a backfill run.
const RunPrefix = "run-"

// alphabet is lowercase so run ids sort and compare the same in every sink.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomLength is the number of random characters after the prefix.
const randomLength = 12

// NewRunID returns a fresh run identifier such as "run-4k2j9x0m1abc".
func NewRunID() (string, error) {
	return withPrefix(RunPrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, randomLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
