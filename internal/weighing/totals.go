package weighing

import "github.com/shopspring/decimal"

// TaxRate is the fixed IVA rate applied to every subtotal.
var TaxRate = decimal.RequireFromString("0.19")

// Totals carries the derived summary of a record.
type Totals struct {
	TotalNetWeight float64 `json:"totalNetWeight"`
	Subtotal       float64 `json:"subtotal"`
	Tax            float64 `json:"tax"`
	TotalWithTax   float64 `json:"totalWithTax"`
}

// ComputeTotals derives net weight, subtotal, tax and total from the complete containers.
// Incomplete containers are ignored and non-finite inputs count as zero. The arithmetic is
// exact; only the final conversion back to float64 may round.
func ComputeTotals(containers []Container, unitPrice float64) Totals {
	net := decimal.Zero
	for _, container := range containers {
		value, ok := container.Net()
		if !ok {
			continue
		}
		net = net.Add(decimal.NewFromFloat(finiteOrZero(value)))
	}

	subtotal := net.Mul(decimal.NewFromFloat(finiteOrZero(unitPrice)))
	tax := subtotal.Mul(TaxRate)
	total := subtotal.Add(tax)

	return Totals{
		TotalNetWeight: net.InexactFloat64(),
		Subtotal:       subtotal.InexactFloat64(),
		Tax:            tax.InexactFloat64(),
		TotalWithTax:   total.InexactFloat64(),
	}
}
