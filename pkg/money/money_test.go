// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.5", "12.50", false},
		{" 3 ", "3.00", false},
		{"-0.005", "-0.01", false},
		{"2311.434", "2311.43", false},
		{"99999999.99", "99999999.99", false},
		{"100000000", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmount_Display(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2311.43", "$2,311.43"},
		{"20.4", "$20.40"},
		{"0", "$0.00"},
		{"-5", "-$5.00"},
		{"1234567.891", "$1,234,567.89"},
		{"100", "$100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.in).Display())
		})
	}
}

func TestSum(t *testing.T) {
	total := Sum(MustParse("0.10"), MustParse("0.20"), FromCents(5))
	assert.Equal(t, "0.35", total.String())
	assert.True(t, Sum().IsZero())
}

func TestAmount_JSON(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	var fromString payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"42.1"}`), &fromString))
	assert.Equal(t, "42.10", fromString.Amount.String())

	var fromNumber payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":42.129}`), &fromNumber))
	assert.Equal(t, "42.13", fromNumber.Amount.String())

	out, err := json.Marshal(payload{Amount: FromCents(1999)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"19.99"}`, string(out))

	var bad payload
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"lots"}`), &bad))
}

func TestAmount_Scan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("10.5"))
	assert.Equal(t, "10.50", a.String())

	require.NoError(t, a.Scan(float64(3.333)))
	assert.Equal(t, "3.33", a.String())

	require.NoError(t, a.Scan(int64(7)))
	assert.Equal(t, "7.00", a.String())

	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())

	assert.Error(t, a.Scan(true))

	v, err := FromCents(250).Value()
	require.NoError(t, err)
	assert.Equal(t, "2.50", v)
}
