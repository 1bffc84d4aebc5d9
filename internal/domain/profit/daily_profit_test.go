package profit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDailyProfit_Derive(t *testing.T) {
	d := &DailyProfit{
		Revenue:    decimal.NewFromInt(200),
		AmazonFees: decimal.NewFromInt(30),
		COGS:       decimal.NewFromInt(70),
	}
	d.Derive()

	assert.True(t, d.GrossProfit.Equal(decimal.NewFromInt(130)))
	assert.True(t, d.NetProfit.Equal(decimal.NewFromInt(100)))
	assert.True(t, d.MarginPercent.Equal(decimal.NewFromInt(50)))

	empty := &DailyProfit{AmazonFees: decimal.NewFromInt(5)}
	empty.Derive()
	assert.True(t, empty.MarginPercent.IsZero())
	assert.True(t, empty.NetProfit.Equal(decimal.NewFromInt(-5)))
}

func TestDailyProfit_DeriveTinyRevenue(t *testing.T) {
	d := &DailyProfit{
		Revenue: decimal.RequireFromString("0.01"),
		COGS:    decimal.NewFromInt(20),
	}
	d.Derive()
	assert.True(t, d.MarginPercent.Equal(decimal.NewFromInt(-199900)), d.MarginPercent.String())

	extreme := &DailyProfit{
		Revenue: decimal.RequireFromString("0.0001"),
		COGS:    decimal.New(1, 12),
	}
	extreme.Derive()
	assert.True(t, extreme.MarginPercent.Equal(decimal.New(-1, 12)), extreme.MarginPercent.String())
}
