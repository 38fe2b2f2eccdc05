// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidID is returned for identifiers that are not positive integers.
var ErrInvalidID = errors.New("id must be a positive integer")

// ParseID parses a positive integer identifier from a query or form value.
// Surrounding whitespace is ignored.
//
// Example:
//
//	id, _ := utils.ParseID("42")  // 42
//	_, err := utils.ParseID("0")  // ErrInvalidID
//	_, err = utils.ParseID("x")   // ErrInvalidID
func ParseID(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 0)
	if err != nil || n == 0 {
		return 0, ErrInvalidID
	}
	return uint(n), nil
}

// ID is a JSON identifier that accepts both numbers and numeric strings,
// since browser clients often post form values verbatim ({"chatId": "7"}).
type ID uint

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}
