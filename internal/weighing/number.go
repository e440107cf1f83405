package weighing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Number is a float64 that accepts JSON numbers, numeric strings (dot or comma decimal
// separator), empty strings and null. Non-finite values collapse to zero.
type Number float64

// NewNumber returns a Number, replacing NaN and infinities with zero.
func NewNumber(value float64) Number {
	return Number(finiteOrZero(value))
}

// Float64 returns the value as a finite float64.
func (n Number) Float64() float64 {
	return finiteOrZero(float64(n))
}

// Pointer returns a pointer to a copy of n.
func (n Number) Pointer() *Number {
	value := n
	return &value
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("%w: number: %v", ErrValidation, err)
	}
	switch typed := raw.(type) {
	case nil:
		*n = 0
		return nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			*n = 0
			return nil
		}
		raw = strings.ReplaceAll(trimmed, ",", ".")
	case json.Number:
		value, err := typed.Float64()
		if err != nil {
			return fmt.Errorf("%w: number: %v", ErrValidation, err)
		}
		*n = NewNumber(value)
		return nil
	case bool:
		return fmt.Errorf("%w: number: unexpected boolean", ErrValidation)
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("%w: number: %v", ErrValidation, err)
	}
	*n = NewNumber(value)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(n.Float64(), 'f', -1, 64)), nil
}

func finiteOrZero(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
