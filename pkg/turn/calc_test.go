package turn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalc_OperatorPrecedenceAndParens(t *testing.T) {
	v, err := Calc("(7 + 3) * 12")
	require.NoError(t, err)
	require.Equal(t, float64(120), v)
}

func TestCalc_UnaryMinus(t *testing.T) {
	v, err := Calc("-4 + 10")
	require.NoError(t, err)
	require.Equal(t, float64(6), v)
}

func TestCalc_DivisionByZero(t *testing.T) {
	_, err := Calc("1 / 0")
	require.Error(t, err)
}

func TestCalc_RejectsForbiddenCharset(t *testing.T) {
	_, err := Calc("__import__('os').system('rm -rf /')")
	require.Error(t, err)
}

func TestCalc_RejectsTrailingGarbage(t *testing.T) {
	_, err := Calc("1 + 2 3")
	require.Error(t, err)
}

func TestCalc_RejectsUnbalancedParens(t *testing.T) {
	_, err := Calc("(1 + 2")
	require.Error(t, err)
}
