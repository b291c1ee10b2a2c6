package feeconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/shared"
)

const partnerOne = "6f1c2a4e-0a51-4c7e-9a7e-3f8b1d2c4e01"

const sampleFile = `
default:
  percent:
    card: 2.9
partners:
  ` + partnerOne + `:
    percent:
      card: 5
      wallet: "3.5"
    fixed:
      card: 0.30
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Partners())

	ctx := context.Background()

	t.Run("explicit partner schedule", func(t *testing.T) {
		fs, err := p.GetFeeSchedule(ctx, uuid.MustParse(partnerOne))
		require.NoError(t, err)
		assert.True(t, fs.PercentByMethod["card"].Equal(decimal.NewFromInt(5)))
		assert.True(t, fs.PercentByMethod["wallet"].Equal(decimal.RequireFromString("3.5")))
		assert.True(t, fs.FixedByMethod["card"].Equal(decimal.RequireFromString("0.3")))

		// callers cannot mutate the loaded schedule
		fs.PercentByMethod["card"] = decimal.Zero
		again, err := p.GetFeeSchedule(ctx, uuid.MustParse(partnerOne))
		require.NoError(t, err)
		assert.True(t, again.PercentByMethod["card"].Equal(decimal.NewFromInt(5)))
	})

	t.Run("default schedule for unlisted partner", func(t *testing.T) {
		other := uuid.New()
		fs, err := p.GetFeeSchedule(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, other, fs.PartnerID)
		assert.True(t, fs.PercentByMethod["card"].Equal(decimal.RequireFromString("2.9")))
	})
}

func TestParse_NoDefault(t *testing.T) {
	p, err := Parse([]byte("partners: {}\n"))
	require.NoError(t, err)

	_, err = p.GetFeeSchedule(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"not yaml", "partners: [", "invalid YAML"},
		{"bad partner key", "partners:\n  acme:\n    percent: {card: 1}\n", "not a UUID"},
		{"percent above 100", "partners:\n  " + partnerOne + ":\n    percent: {card: 101}\n", partnerOne},
		{"negative fixed fee", "default:\n  fixed: {card: -1}\n", "default schedule"},
		{"not a number", "default:\n  percent: {card: abc}\n", "invalid YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Partners())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
