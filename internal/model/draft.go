package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Draft is the structured expense produced by the AI model or the receipt
// portal, before it is confirmed and persisted.
type Draft struct {
	Amount             Number      `json:"amount,omitzero"`
	Currency           string      `json:"currency,omitempty"`
	Vendor             string      `json:"vendor,omitempty"`
	PurchaseDate       string      `json:"purchase_date,omitempty"`
	Category           string      `json:"category,omitempty"`
	CategoryID         *uint       `json:"category_id,omitempty"`
	Items              []DraftItem `json:"items,omitempty"`
	Notes              string      `json:"notes,omitempty"`
	Language           string      `json:"language,omitempty"`
	Confidence         Number      `json:"confidence,omitzero"`
	FiscalCode         string      `json:"fiscal_code,omitempty"`
	RegistrationNumber string      `json:"registration_number,omitempty"`
	Address            string      `json:"address,omitempty"`
}

// DraftItem is one receipt line.
type DraftItem struct {
	Name     string `json:"name"`
	Qty      Number `json:"qty,omitzero"`
	Price    Number `json:"price,omitzero"`
	Total    Number `json:"total,omitzero"`
	Category string `json:"category,omitempty"`
}

// Number is a loosely typed JSON number. Models sometimes quote numbers or use
// a decimal comma; both are accepted. The zero value means "absent".
type Number struct {
	raw string
	set bool
}

// NumberOf wraps a float.
func NumberOf(v float64) Number {
	return Number{raw: strconv.FormatFloat(v, 'f', -1, 64), set: true}
}

// NumberFromString keeps s verbatim; it reads as absent when unparsable.
func NumberFromString(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	return Number{raw: s, set: true}
}

// IsZero reports whether the value was absent. Used by omitzero.
func (n Number) IsZero() bool { return !n.set }

// Float parses the value, accepting "12,5" as 12.5. NaN and infinities read
// as absent.
func (n Number) Float() (float64, bool) {
	if !n.set {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(n.raw, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Ptr returns the parsed value or nil.
func (n Number) Ptr() *float64 {
	v, ok := n.Float()
	if !ok {
		return nil
	}
	return &v
}

func (n Number) String() string { return n.raw }

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumberFromString(s)
		return nil
	}
	*n = Number{raw: string(data), set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	if v, ok := n.Float(); ok {
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return json.Marshal(n.raw)
}
