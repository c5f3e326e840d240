package bridge

import (
	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"github.com/shopspring/decimal"
)

var (
	solanaFee  = decimal.RequireFromString("0.000005")
	defaultFee = decimal.RequireFromString("0.001")
	relayerFee = decimal.RequireFromString("0.0001")
)

func chainFee(chain string) decimal.Decimal {
	if chain == "solana" {
		return solanaFee
	}
	return defaultFee
}

// EstimateFees returns the fee table for a transfer. The USD value is the
// amount priced in the source chain's native token.
func EstimateFees(fromChain, toChain string, amount decimal.Decimal) (*models.FeeEstimate, error) {
	from, to, err := validateRoute(fromChain, toChain)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, store.NewValidationError("amount", "must not be negative")
	}

	source := chainFee(from.Name)
	destination := chainFee(to.Name)

	return &models.FeeEstimate{
		FromChain:         from.Name,
		ToChain:           to.Name,
		Amount:            amount,
		SourceFee:         source,
		DestinationFee:    destination,
		RelayerFee:        relayerFee,
		TotalFee:          source.Add(destination).Add(relayerFee),
		EstimatedValueUsd: amount.Mul(from.UsdPrice).Round(2),
		Mode:              models.TransferModeSimulation,
	}, nil
}
