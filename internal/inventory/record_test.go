package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
)

func TestRecordIsLowStockBoundary(t *testing.T) {
	at := Record{TotalQuantity: 8, ReservedQuantity: 5, LowStockThreshold: 3}
	above := Record{TotalQuantity: 9, ReservedQuantity: 5, LowStockThreshold: 3}

	assert.True(t, at.IsLowStock())
	assert.False(t, above.IsLowStock())
}

func TestRecordCheckInvariants(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		ok   bool
	}{
		{name: "empty", rec: Record{}, ok: true},
		{name: "fully reserved", rec: Record{TotalQuantity: 4, ReservedQuantity: 4}, ok: true},
		{name: "over reserved", rec: Record{TotalQuantity: 3, ReservedQuantity: 4}},
		{name: "negative reserved", rec: Record{TotalQuantity: 3, ReservedQuantity: -1}},
		{name: "negative total", rec: Record{TotalQuantity: -1}},
		{name: "negative threshold", rec: Record{LowStockThreshold: -2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.CheckInvariants()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal), "got %v", err)
		})
	}
}

func TestNextRestockTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 30, 0, 123456789, time.UTC)

	first := nextRestockTime(nil, now)
	assert.Equal(t, now.Truncate(time.Microsecond), first)

	sameClock := nextRestockTime(&first, now)
	assert.Equal(t, first.Add(time.Microsecond), sameClock)

	earlier := now.Add(-time.Hour)
	clockStepBack := nextRestockTime(&sameClock, earlier)
	assert.True(t, clockStepBack.After(sameClock))

	later := now.Add(time.Minute)
	assert.Equal(t, later.Truncate(time.Microsecond), nextRestockTime(&first, later))
}
