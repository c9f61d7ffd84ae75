package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salvage-radar/models"
	"salvage-radar/utils"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(DriverSQLite, filepath.Join(t.TempDir(), "offers.db"), utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOffer(lot string) *models.Offer {
	buyNow := 19900.0
	return &models.Offer{
		LotNumber:   lot,
		Make:        "Toyota",
		Model:       "Camry",
		Year:        2022,
		CurrentBid:  18094,
		BuyNowPrice: &buyNow,
		Damage:      "FRONT END",
		TitleStatus: "CLEAN",
		Location:    "CA - LOS ANGELES",
		SaleDate:    "2023-12-15",
		Link:        "https://www.copart.com/lot/" + lot,
		Source:      "copart",
	}
}

func sampleAnalysis(rec models.Recommendation, margin float64) *models.Analysis {
	return &models.Analysis{
		MarketValue:      145000,
		RepairCost:       22000,
		TransportCost:    8500,
		CustomsCost:      12500,
		TotalCost:        115376,
		PotentialProfit:  32500,
		ProfitMargin:     margin,
		RiskScore:        3,
		Recommendation:   rec,
		MaxBidPrice:      20808,
		DetailedAnalysis: "test",
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.True(t, s.Insert(ctx, sampleOffer("45678912")))
	assert.False(t, s.Insert(ctx, sampleOffer("45678912")), "second insert must report not new")

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Offers)

	exists, err := s.Exists(ctx, "45678912")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "00000000")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsertFillsIdentityAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	o := sampleOffer("1")

	require.True(t, s.Insert(context.Background(), o))
	assert.NotZero(t, o.ID)
	assert.False(t, o.FirstSeen.IsZero())
	assert.Equal(t, o.FirstSeen, o.LastUpdated)
	assert.False(t, o.IsAnalyzed)
}

func TestInsertRejectsConstraintViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := sampleOffer("2")
	bad.CurrentBid = -1
	assert.False(t, s.Insert(ctx, bad))

	assert.False(t, s.Insert(ctx, &models.Offer{Make: "Ford"}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Offers)
}

func TestAttachAnalysisMarksOfferAnalyzed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := sampleOffer("45678912")
	require.True(t, s.Insert(ctx, o))

	a := sampleAnalysis(models.RecommendationBuy, 0.32)
	require.True(t, s.AttachAnalysis(ctx, "45678912", a))
	assert.NotZero(t, a.ID)
	assert.Equal(t, o.ID, a.OfferID)

	unanalyzed, err := s.ListUnanalyzed(ctx)
	require.NoError(t, err)
	assert.Empty(t, unanalyzed)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Offers: 1, AnalyzedOffers: 1, Analyses: 1}, st)
}

func TestAttachAnalysisUnknownLotLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.True(t, s.Insert(ctx, sampleOffer("1")))

	before, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.False(t, s.AttachAnalysis(ctx, "does-not-exist", sampleAnalysis(models.RecommendationBuy, 0.5)))

	after, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAttachAnalysisRollsBackOnInvalidRecommendation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.True(t, s.Insert(ctx, sampleOffer("1")))

	assert.False(t, s.AttachAnalysis(ctx, "1", sampleAnalysis("MAYBE", 0.5)))

	unanalyzed, err := s.ListUnanalyzed(ctx)
	require.NoError(t, err)
	require.Len(t, unanalyzed, 1)
	assert.False(t, unanalyzed[0].IsAnalyzed)
}

func TestListUnanalyzedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, lot := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.True(t, s.Insert(ctx, sampleOffer(lot)))
	}

	offers, err := s.ListUnanalyzed(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 3)
	assert.Equal(t, "c", offers[0].LotNumber)
	assert.Equal(t, "b", offers[1].LotNumber)
	assert.Equal(t, "a", offers[2].LotNumber)
	require.NotNil(t, offers[0].BuyNowPrice)
	assert.Equal(t, 19900.0, *offers[0].BuyNowPrice)
	assert.True(t, offers[2].FirstSeen.Equal(base))
}

func TestListQualifiedFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		lot    string
		rec    models.Recommendation
		margin float64
	}{
		{"low", models.RecommendationBuy, 0.20},
		{"mid", models.RecommendationBuy, 0.26},
		{"edge", models.RecommendationBuy, 0.25},
		{"best", models.RecommendationBuy, 0.40},
		{"avoid", models.RecommendationAvoid, 0.90},
		{"caution", models.RecommendationCaution, 0.50},
	}
	for _, c := range cases {
		require.True(t, s.Insert(ctx, sampleOffer(c.lot)))
		require.True(t, s.AttachAnalysis(ctx, c.lot, sampleAnalysis(c.rec, c.margin)))
	}
	require.True(t, s.Insert(ctx, sampleOffer("unscored")))

	qualified, err := s.ListQualified(ctx, 0.25)
	require.NoError(t, err)

	var lots []string
	for _, q := range qualified {
		lots = append(lots, q.Offer.LotNumber)
		assert.Equal(t, models.RecommendationBuy, q.Analysis.Recommendation)
		assert.True(t, q.Offer.IsAnalyzed)
	}
	assert.Equal(t, []string{"best", "mid", "edge"}, lots)
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT $1, $2", s.rebind("SELECT ?, ?"))

	s.driver = DriverSQLite
	assert.Equal(t, "SELECT ?, ?", s.rebind("SELECT ?, ?"))
}

func TestNewSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLStore("oracle", "x", utils.NewNopLogger())
	assert.Error(t, err)
}
