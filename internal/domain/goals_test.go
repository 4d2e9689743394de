package domain_test

import (
	"testing"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name            string
		current, target float64
		want            float64
	}{
		{"half", 50, 100, 50},
		{"over target clamps", 250, 100, 100},
		{"negative clamps", -5, 100, 0},
		{"zero target is met", 3, 0, 100},
		{"negative target is met", 3, -1, 100},
		{"zero current", 0, 40, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, domain.Percentage(tt.current, tt.target), 1e-9)
		})
	}
}

func TestNewMetric_AlwaysInRange(t *testing.T) {
	for current := -100.0; current <= 1000; current += 37 {
		m := domain.NewMetric(current, 120)
		assert.GreaterOrEqual(t, m.Percentage, 0.0)
		assert.LessOrEqual(t, m.Percentage, 100.0)
	}
}
