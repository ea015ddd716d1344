package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var errInvalidID = errors.New("invalid_id")

// optional parses a query or path value. Blank means absent.
func optional[T any](value string, parse func(string) (T, error)) (*T, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := parse(value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalBool(value string) (*bool, error) { return optional(value, strconv.ParseBool) }

func parseOptionalInt(value string) (*int, error) { return optional(value, strconv.Atoi) }

func parseOptionalID(value string) (*snowflake.ID, error) {
	return optional(value, func(s string) (snowflake.ID, error) {
		id, err := snowflake.ParseString(s)
		if err != nil || id <= 0 {
			return 0, errInvalidID
		}
		return id, nil
	})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := parseOptionalID(value)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, errInvalidID
	}
	return *id, nil
}
