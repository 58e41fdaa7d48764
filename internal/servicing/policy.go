package servicing

import (
	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/config"
	"github.com/microfin-loan-servicing/internal/domain/loan"
)

// Policies bundles the servicing policy parameters derived from configuration
type Policies struct {
	Penalty loan.PenaltyPolicy
	Payoff  loan.PayoffPolicy
}

// PoliciesFromConfig converts the raw configuration values into the decimal
// policy types used by the domain
func PoliciesFromConfig(cfg *config.ServicingConfig) Policies {
	return Policies{
		Penalty: loan.PenaltyPolicy{
			DailyRate: decimal.NewFromFloat(cfg.PenaltyDailyRate),
			CapFactor: decimal.NewFromFloat(cfg.PenaltyCapFactor),
			GraceDays: cfg.GraceDays,
		},
		Payoff: loan.PayoffPolicy{
			DiscountRate:   decimal.NewFromFloat(cfg.PayoffDiscountRate),
			WaivePenalties: cfg.WaivePenaltiesOnPayoff,
		},
	}
}
