package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/store/memory"
)

func TestWriteApprovedCSV(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	approved := *pick.NewProduct("wireless mouse")
	approved.Status = pick.StatusApproved
	approved.ImageURL = "https://img.example/mouse.png"

	alsoApproved := *pick.NewProduct("anvil, cast iron")
	alsoApproved.Status = pick.StatusApproved
	alsoApproved.ImageURL = "https://img.example/anvil.png"

	pending := *pick.NewProduct("lamp")
	pending.Status = pick.StatusPendingReview
	pending.ImageURL = "https://img.example/lamp.png"

	for _, p := range []pick.Product{approved, alsoApproved, pending} {
		require.NoError(t, s.UpsertProduct(ctx, p))
	}

	var buf bytes.Buffer
	n, err := WriteApprovedCSV(ctx, s, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	want := "product_name,image_url\n" +
		"\"anvil, cast iron\",https://img.example/anvil.png\n" +
		"wireless mouse,https://img.example/mouse.png\n"
	require.Equal(t, want, buf.String())
}

func TestWriteApprovedCSVEmptyStore(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteApprovedCSV(context.Background(), memory.New(), &buf)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "product_name,image_url\n", buf.String())
}

type failingStore struct{ pick.Store }

func (failingStore) ListByExternalStatus(context.Context, string) ([]pick.Product, error) {
	return nil, errors.New("connection refused")
}

func TestWriteApprovedCSVStoreError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := WriteApprovedCSV(context.Background(), failingStore{}, &buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}
