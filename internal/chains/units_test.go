package chains

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	milli := new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(1000))

	tests := []struct {
		name     string
		input    string
		decimals int
		want     *big.Int
		wantErr  bool
	}{
		{"verification amount", "0.001", 18, milli, false},
		{"whole", "1", 18, big.NewInt(params.Ether), false},
		{"padded", " 0.001 ", 18, milli, false},
		{"zero", "0", 18, big.NewInt(0), false},
		{"six decimals", "1.5", 6, big.NewInt(1_500_000), false},
		{"too precise", "0.0000001", 6, nil, true},
		{"negative", "-1", 18, nil, true},
		{"fraction syntax", "1/3", 18, nil, true},
		{"exponent", "1e-3", 18, nil, true},
		{"garbage", "abc", 18, nil, true},
		{"empty", "", 18, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.input, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	milli, _ := ParseUnits("0.001", 18)
	assert.Equal(t, "0.001", FormatUnits(milli, 18))
	assert.Equal(t, "1", FormatUnits(big.NewInt(params.Ether), 18))
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 18))
	assert.Equal(t, "-0.25", FormatUnits(big.NewInt(-250), 3))
}

func TestParseFormatAgree(t *testing.T) {
	for _, s := range []string{"0.001", "0.0011", "12.345678", "100"} {
		v, err := ParseUnits(s, 18)
		require.NoError(t, err)
		assert.Equal(t, s, FormatUnits(v, 18))
	}
}
