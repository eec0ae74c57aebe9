// Package export renders approved product rows as CSV for downstream
// catalog ingestion.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/prodfinder/imagepick/internal/pick"
)

// header is the fixed CSV column layout consumed by the catalog importer.
var header = []string{"product_name", "image_url"}

// WriteApprovedCSV writes one row per approved product, ordered by product
// name, and returns the number of data rows written. Products in any other
// state are skipped entirely.
func WriteApprovedCSV(ctx context.Context, store pick.Store, w io.Writer) (int, error) {
	rows, err := store.ListByExternalStatus(ctx, pick.ExternalApproved)
	if err != nil {
		return 0, fmt.Errorf("list approved products: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	written := 0
	for _, p := range rows {
		if err := cw.Write([]string{p.Name, p.ImageURL}); err != nil {
			return written, fmt.Errorf("write row %q: %w", p.Name, err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flush csv: %w", err)
	}
	return written, nil
}
