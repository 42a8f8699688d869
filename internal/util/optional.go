package util

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Optional models a value that may be absent, both in JSON payloads
// (field omitted vs. null vs. set) and in nullable database columns.
type Optional[T any] struct {
	Val   T
	IsSet bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, IsSet: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Unwrap() T {
	if !o.IsSet {
		panic("called Unwrap on a None value")
	}
	return o.Val
}

func (o Optional[T]) UnwrapOr(defaultVal T) T {
	if !o.IsSet {
		return defaultVal
	}
	return o.Val
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.IsSet = false
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.IsSet = true
	o.Val = v
	return nil
}

// Scan implements the sql.Scanner interface. Drivers hand scanner
// destinations wire representations (uuid columns arrive as strings), so a T
// that scans itself gets the value delegated before the direct assertion.
func (o *Optional[T]) Scan(value any) error {
	if value == nil {
		o.IsSet = false
		var zero T
		o.Val = zero
		return nil
	}

	var v T
	switch t := any(&v).(type) {
	case interface{ Scan(any) error }:
		if err := t.Scan(value); err != nil {
			return err
		}
	default:
		var ok bool
		if v, ok = value.(T); !ok {
			return fmt.Errorf("util: cannot scan %T into Optional[%T]", value, v)
		}
	}

	o.Val = v
	o.IsSet = true
	return nil
}

// Value implements the driver.Valuer interface.
func (o Optional[T]) Value() (driver.Value, error) {
	if !o.IsSet {
		return nil, nil
	}
	if valuer, ok := any(o.Val).(driver.Valuer); ok {
		return valuer.Value()
	}
	return o.Val, nil
}
