package amount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var eth = Units{Symbol: "ETH", Decimals: 18}

func TestUnits_ToSmallest(t *testing.T) {
	tests := []struct {
		name    string
		units   Units
		human   string
		want    string
		wantErr error
	}{
		{name: "two hundredths of ether", units: eth, human: "0.02", want: "20000000000000000"},
		{name: "whole bitcoin", units: Units{Symbol: "BTC", Decimals: 8}, human: "1", want: "100000000"},
		{name: "one drop", units: Units{Symbol: "XRP", Decimals: 6}, human: "0.000001", want: "1"},
		{name: "too precise for xrp", units: Units{Symbol: "XRP", Decimals: 6}, human: "0.0000001", wantErr: ErrTooManyDecimals},
		{name: "negative", units: eth, human: "-1", wantErr: ErrNegativeAmount},
		{name: "garbage", units: eth, human: "one", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.units.ToSmallest(tt.human)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestUnits_ToHuman(t *testing.T) {
	require.Equal(t, "0.02", eth.ToHuman(MustParse("20000000000000000")))
	require.Equal(t, "0", eth.ToHuman(Zero()))
	require.Equal(t, "1.5 SOL", Units{Symbol: "SOL", Decimals: 9}.Format(MustParse("1500000000")))
}

func TestAmount_Arithmetic(t *testing.T) {
	a := MustParse("1500000000000000000")
	b := MustParse("1000000000000000000")

	require.Equal(t, "500000000000000000", a.Sub(b).String())
	require.Equal(t, "2500000000000000000", a.Add(b).String())
	require.Equal(t, -1, b.Sub(a).Sign())
	require.True(t, b.Sub(a).ClampZero().IsZero())
	require.Equal(t, b, Min(a, b))
	require.Equal(t, a, Max(a, b))
	require.True(t, Zero().Equal(Amount{}))
}

func TestAmount_LargerThanUint64(t *testing.T) {
	huge := MustParse("340282366920938463463374607431768211456")
	require.Equal(t, "340282366920938463463374607431768211457", huge.Add(FromUint64(1)).String())
}

func TestAmount_JSON(t *testing.T) {
	raw, err := json.Marshal(map[string]Amount{"v": MustParse("42")})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"42"}`, string(raw))

	var out map[string]Amount
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, "42", out["v"].String())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("1.5")
	require.ErrorIs(t, err, ErrInvalidAmount)
}
