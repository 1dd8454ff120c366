package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
)

const serumID = "쿠팡_헤어세럼_프레쉬"

func newService(t *testing.T, rules *memRuleStore, lines *memLineStore, catalog KitCatalog) *MatchingService {
	t.Helper()
	n, err := domain.NewNormalizer(nil)
	require.NoError(t, err)
	return NewMatchingService(rules, lines, catalog, n, zap.NewNop(), Options{RematchWorkers: 3, PageSize: 2})
}

func serumLine(orderNo string) ordersdomain.OrderLineInput {
	return ordersdomain.OrderLineInput{
		SiteOrderNo: orderNo,
		Platform:    "쿠팡",
		ProductName: "페디슨 헤어세럼",
		OptionText:  serumID,
		Quantity:    1,
		PaidAt:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMatchingService_UnmatchedThenRuleRematches(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	report, err := svc.ImportOrders(ctx, []ordersdomain.OrderLineInput{
		serumLine("O-1"), serumLine("O-2"), serumLine("O-3"),
		{SiteOrderNo: "O-4", OptionText: "다른 상품", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Inserted)
	assert.Equal(t, 4, report.Unmatched)
	for id := ordersdomain.LineID(1); id <= 4; id++ {
		assert.Equal(t, ordersdomain.StatusUnmatched, lines.get(id).status)
	}

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	require.NoError(t, res.RematchWarning)
	require.NotNil(t, res.Rematch)
	assert.Equal(t, 3, res.Rematch.Matched)
	assert.Equal(t, 1, res.Rematch.Unchanged)
	assert.Equal(t, 4, res.Rematch.Scanned)

	for id := ordersdomain.LineID(1); id <= 3; id++ {
		rec := lines.get(id)
		assert.Equal(t, ordersdomain.StatusMatched, rec.status)
		assert.Equal(t, catalogdomain.KitID("KIT-001"), rec.kit)
	}
	assert.Equal(t, ordersdomain.StatusUnmatched, lines.get(4).status)
}

func TestMatchingService_RematchIsIdempotent(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		lines.seed(serumLine(fmt.Sprintf("O-%d", i)), ordersdomain.StatusNew, "")
	}
	lines.seed(ordersdomain.OrderLineInput{SiteOrderNo: "X", OptionText: "미등록", Quantity: 1}, ordersdomain.StatusNew, "")
	_, err := rules.Upsert(ctx, mustRule(t, serumID, "KIT-001"))
	require.NoError(t, err)

	first, err := svc.Rematch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Matched)
	assert.Equal(t, 1, first.Unmatched)
	writesAfterFirst := lines.writeCount()
	assert.Equal(t, 6, writesAfterFirst)

	second, err := svc.Rematch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Writes())
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, writesAfterFirst, lines.writeCount())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestMatchingService_RematchDoesNotOverwriteConcurrentWrite(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	id := lines.seed(serumLine("O-1"), ordersdomain.StatusNew, "")
	_, err := rules.Upsert(ctx, mustRule(t, serumID, "KIT-STALE"))
	require.NoError(t, err)

	// Un import résout la ligne entre la lecture et l'écriture du rematch
	lines.beforeUpdate = func(lid ordersdomain.LineID) {
		lines.mu.Lock()
		defer lines.mu.Unlock()
		if r := lines.records[lid]; lid == id && r.status == ordersdomain.StatusNew {
			r.kit, r.status = "KIT-FRESH", ordersdomain.StatusMatched
		}
	}

	report, err := svc.Rematch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Matched)
	assert.Equal(t, catalogdomain.KitID("KIT-FRESH"), lines.get(id).kit)
}

func TestMatchingService_AddRuleSurvivesRematchFailure(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	lines.seed(serumLine("O-1"), ordersdomain.StatusNew, "")
	lines.findErr = errStoreDown

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err, "rule write must not fail because of rematch")
	require.NotNil(t, res.Rule)
	assert.ErrorIs(t, res.RematchWarning, errStoreDown)

	rs, err := rules.Snapshot(ctx)
	require.NoError(t, err)
	kit, ok := rs.Lookup(domain.KeyIdentifier, domain.CanonicalKey(serumID))
	assert.True(t, ok)
	assert.Equal(t, catalogdomain.KitID("KIT-001"), kit)

	// Le rematch suivant rattrape la ligne
	lines.findErr = nil
	report, err := svc.Rematch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
}

func TestMatchingService_AddRuleWriteFailureIsFatal(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	rules.upsertErr = errStoreDown
	svc := newService(t, rules, lines, nil)

	res, err := svc.AddRule(context.Background(), domain.KeyIdentifier, serumID, "KIT-001")
	assert.ErrorIs(t, err, errStoreDown)
	assert.Nil(t, res)
}

func TestMatchingService_RematchWriteErrorsAreReported(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	lines.seed(serumLine("O-1"), ordersdomain.StatusNew, "")
	lines.updateErr = errStoreDown

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	assert.ErrorIs(t, res.RematchWarning, errStoreDown)
}

func TestMatchingService_RematchHonoursCancellation(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	lines.seed(serumLine("O-1"), ordersdomain.StatusNew, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Rematch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ordersdomain.StatusNew, lines.get(1).status)
}

func TestMatchingService_RematchReportsCancellationAfterLastSubmit(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	n, err := domain.NewNormalizer(nil)
	require.NoError(t, err)
	svc := NewMatchingService(rules, lines, nil, n, zap.NewNop(), Options{RematchWorkers: 1, PageSize: 10})

	for i := 0; i < 3; i++ {
		lines.seed(serumLine(fmt.Sprintf("O-%d", i)), ordersdomain.StatusNew, "")
	}
	_, err = rules.Upsert(context.Background(), mustRule(t, serumID, "KIT-001"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// la première écriture annule: les suivantes restent en file
	lines.beforeUpdate = func(ordersdomain.LineID) { cancel() }

	report, err := svc.Rematch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.LessOrEqual(t, report.Writes(), 3)
}

func TestMatchingService_RematchSkipsUnreadableLines(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	lines.seed(serumLine("O-1"), ordersdomain.StatusNew, "")
	lines.seed(serumLine("O-2"), ordersdomain.ProcessStatus("ARCHIVED"), "")
	lines.seed(serumLine("O-3"), ordersdomain.ProcessStatus("ARCHIVED"), "")
	// ancien matcher: kit posé, statut NULL
	lines.seed(serumLine("O-4"), ordersdomain.StatusNew, "KIT-OLD")
	lines.seed(serumLine("O-5"), ordersdomain.StatusUnmatched, "")

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	require.NoError(t, res.RematchWarning)
	assert.Equal(t, 2, res.Rematch.Defects)
	assert.Equal(t, 3, res.Rematch.Matched)

	for _, id := range []ordersdomain.LineID{1, 4, 5} {
		rec := lines.get(id)
		assert.Equal(t, ordersdomain.StatusMatched, rec.status, "line %d", id)
		assert.Equal(t, catalogdomain.KitID("KIT-001"), rec.kit, "line %d", id)
	}
}

func TestMatchingService_DecoratedSiteRuleRoundTrip(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	n, err := domain.NewNormalizer(map[string][]string{"쿠팡": {`^쿠팡_`}})
	require.NoError(t, err)
	svc := NewMatchingService(rules, lines, nil, n, zap.NewNop(), Options{RematchWorkers: 2, PageSize: 2})
	ctx := context.Background()

	imported, err := svc.ImportOrders(ctx, []ordersdomain.OrderLineInput{
		serumLine("O-1"), serumLine("O-2"), serumLine("O-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, imported.Unmatched)

	res, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	require.NoError(t, res.RematchWarning)
	assert.Equal(t, 3, res.Rematch.Matched)
	for id := ordersdomain.LineID(1); id <= 3; id++ {
		assert.Equal(t, catalogdomain.KitID("KIT-001"), lines.get(id).kit)
	}

	preview, key, err := svc.Preview(ctx, serumID, "쿠팡", "", "")
	require.NoError(t, err)
	assert.True(t, preview.Matched())
	assert.Equal(t, domain.CanonicalKey("헤어세럼_프레쉬"), key)
}

func TestMatchingService_MasterCodeTier(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	in := ordersdomain.OrderLineInput{SiteOrderNo: "O-1", OptionText: "옵션 없음", MasterProductCode: "M-77", Quantity: 1}
	lines.seed(in, ordersdomain.StatusUnmatched, "")

	res, err := svc.AddRule(ctx, domain.KeyMasterCode, "M-77", "KIT-M")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rematch.Matched)
	assert.Equal(t, catalogdomain.KitID("KIT-M"), lines.get(1).kit)
}

func TestMatchingService_CatalogValidation(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, stubCatalog{known: map[catalogdomain.KitID]bool{"KIT-001": true}})
	ctx := context.Background()

	_, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-404")
	assert.ErrorIs(t, err, domain.ErrUnknownKit)
	assert.True(t, IsValidationError(err))

	_, err = svc.AddRule(ctx, domain.KeyIdentifier, "   ", "KIT-001")
	assert.ErrorIs(t, err, domain.ErrEmptyIdentifier)

	_, err = svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	assert.NoError(t, err)
}

func TestMatchingService_CreateRuleRejectsDuplicate(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, domain.KeyIdentifier, serumID, "KIT-002")
	assert.ErrorIs(t, err, domain.ErrRuleExists)
}

func TestMatchingService_UpsertReplacesKit(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()

	_, err := svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-001")
	require.NoError(t, err)
	_, err = svc.AddRule(ctx, domain.KeyIdentifier, serumID, "KIT-002")
	require.NoError(t, err)

	res, key, err := svc.Preview(ctx, "[특가] "+serumID, "쿠팡", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalKey(serumID), key)
	assert.Equal(t, catalogdomain.KitID("KIT-002"), res.KitID)

	all, total, err := svc.ListRules(ctx, 1, 50, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, all, 1)
}

func TestMatchingService_ImportRecordsDefects(t *testing.T) {
	rules, lines := newMemRuleStore(), newMemLineStore()
	svc := newService(t, rules, lines, nil)
	ctx := context.Background()
	_, err := rules.Upsert(ctx, mustRule(t, serumID, "KIT-001"))
	require.NoError(t, err)

	report, err := svc.ImportOrders(ctx, []ordersdomain.OrderLineInput{
		serumLine("O-1"),
		{SiteOrderNo: "", OptionText: "x", Quantity: 1},
		{SiteOrderNo: "O-3", OptionText: "x", Quantity: 0},
		{SiteOrderNo: "O-4", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.Defects, 3)
	assert.Equal(t, 1, report.Defects[0].Index)
}

func mustRule(t *testing.T, raw, kit string) *domain.MappingRule {
	t.Helper()
	n, _ := domain.NewNormalizer(nil)
	r, err := domain.NewMappingRule(n, domain.KeyIdentifier, raw, kit)
	require.NoError(t, err)
	return r
}
