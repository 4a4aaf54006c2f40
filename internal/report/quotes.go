package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/guarzo/pkmprices/internal/model"
)

// QuoteHeaders is the column order of WriteQuotes.
var QuoteHeaders = []string{
	"card", "set", "upstream_id", "language", "condition",
	"min_price", "avg_price", "trend_price", "currency",
	"available", "source", "last_updated",
}

// WriteQuotes writes one CSV row per quote after the header row. Amounts are
// written with two decimals; timestamps in RFC 3339 UTC.
func WriteQuotes(w io.Writer, quotes []model.PriceQuote) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(QuoteHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, q := range quotes {
		row := []string{
			q.CardKey.Name,
			q.CardKey.SetName,
			q.CardKey.UpstreamID,
			string(q.Language),
			string(q.Condition),
			q.MinPrice.StringFixed(2),
			q.AvgPrice.StringFixed(2),
			q.TrendPrice.StringFixed(2),
			q.Currency,
			strconv.Itoa(q.AvailableQuantity),
			string(q.Source),
			q.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(EscapeCSVRow(row)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
