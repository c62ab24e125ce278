package checkout

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"refillpos/internal/money"
	"refillpos/internal/pricing"
)

const receiptRule = "--------------------------------"

// Receipt renders a plain-text receipt for a completed sale.
func Receipt(r *SaleResult, title string) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	fmt.Fprintf(&b, "Sale   %s\n", r.SaleID)
	fmt.Fprintf(&b, "Date   %s\n", r.CreatedAt.Format("2006-01-02 15:04"))
	if r.CreatedBy != "" {
		fmt.Fprintf(&b, "Kasir  %s\n", r.CreatedBy)
	}
	b.WriteString(receiptRule + "\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 1, ' ', tabwriter.AlignRight)
	for _, line := range r.Lines {
		fmt.Fprintf(tw, "%s\t\n", line.Name)
		fmt.Fprintf(tw, "  %d x %s\t%s\t\n", line.Quantity, money.Format(line.UnitPriceCents), money.Format(line.SubtotalCents()))
		if line.DiscountType != "" && line.DiscountType != pricing.DiscountNone {
			fmt.Fprintf(tw, "  disc %s %s\t\t\n", line.DiscountType, line.DiscountValue.String())
		}
	}
	_ = tw.Flush()

	b.WriteString(receiptRule + "\n")
	fmt.Fprintf(&b, "Total    %s\n", money.Format(r.TotalCents))
	fmt.Fprintf(&b, "Payment  %s\n", r.PaymentMethod)
	if r.AmountReceivedCents != nil {
		fmt.Fprintf(&b, "Cash     %s\n", money.Format(*r.AmountReceivedCents))
		fmt.Fprintf(&b, "Change   %s\n", money.Format(r.ChangeCents))
	}
	return b.String()
}
