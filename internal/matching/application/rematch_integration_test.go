package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
	"orderops/internal/testhelpers"
)

func TestRematch_Integration(t *testing.T) {
	testhelpers.SkipIfNoDatabase(t)

	tc := testhelpers.SetupTestContext(t)
	defer tc.Cleanup()
	tc.SeedKits(t, "KIT-001")

	n, err := domain.NewNormalizer(nil)
	require.NoError(t, err)
	svc := NewMatchingService(tc.RuleRepo, tc.LineRepo, tc.CatalogRepo, n, zap.NewNop(), Options{RematchWorkers: 4, PageSize: 3})
	ctx := context.Background()

	var inputs []ordersdomain.OrderLineInput
	for i := 0; i < 7; i++ {
		inputs = append(inputs, ordersdomain.OrderLineInput{
			SiteOrderNo: "CP-" + string(rune('A'+i)),
			Platform:    "coupang",
			OptionText:  "쿠팡_헤어세럼_프레쉬",
			Quantity:    1,
			PaidAt:      time.Now(),
		})
	}
	imported, err := svc.ImportOrders(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, 7, imported.Unmatched)

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, "쿠팡_헤어세럼_프레쉬", "KIT-001")
	require.NoError(t, err)
	require.NoError(t, res.RematchWarning)
	assert.Equal(t, 7, res.Rematch.Matched)

	matched, err := tc.LineRepo.CountByStatus(ctx, ordersdomain.StatusMatched)
	require.NoError(t, err)
	assert.Equal(t, 7, matched)

	page, err := tc.LineRepo.FindByStatus(ctx, ordersdomain.StatusMatched, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Defects)
	for _, l := range page.Lines {
		assert.Equal(t, catalogdomain.KitID("KIT-001"), l.MatchedKit())
	}

	second, err := svc.Rematch(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Writes())

	inconsistent, err := tc.LineRepo.CountInconsistent(ctx)
	require.NoError(t, err)
	assert.Zero(t, inconsistent)
}
