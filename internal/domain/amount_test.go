package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestToStroops(t *testing.T) {
	assert.Equal(t, "10000000", domain.ToStroops(1))
	assert.Equal(t, "1234500000", domain.ToStroops(123.45))
	assert.Equal(t, "1", domain.ToStroops(0.00000019))
	assert.Equal(t, "0", domain.ToStroops(0))
}

func TestFromStroops(t *testing.T) {
	v, err := domain.FromStroops("1234500000")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, v, 1e-9)

	v, err = domain.FromStroops("")
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = domain.FromStroops("abc")
	assert.Error(t, err)
}

func TestBill_Expired(t *testing.T) {
	created := mustTime("2026-01-01T10:00:00Z")
	b := domain.Bill{Status: domain.BillCreated, CreatedAt: created}

	assert.False(t, b.Expired(created.Add(23*time.Hour)))
	assert.True(t, b.Expired(created.Add(25*time.Hour)))

	b.Status = domain.BillPaid
	assert.False(t, b.Expired(created.Add(48*time.Hour)), "paid bills never expire")
}
