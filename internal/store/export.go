package store

import (
	"context"
	"fmt"
)

// Export copies every row of src into dst, re-laid into the current column
// contract. Header names from earlier layouts are matched through the column
// aliases; columns src does not have are left empty. It returns the number of
// rows written.
func Export(ctx context.Context, src, dst Store) (int, error) {
	t, err := src.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load source: %w", err)
	}
	n := 0
	for _, row := range t.Normalize() {
		if err := dst.AppendRow(ctx, row); err != nil {
			return n, fmt.Errorf("append row %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}
