package processor

import (
	"sort"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filterFixture 跨两周的五条订单，覆盖两种线路类型与三个客户分层
func filterFixture() dataframe.DataFrame {
	return dataframe.LoadRecords([][]string{
		{ColOrderID, ColOrderDate, ColSegment, ColRouteType, ColProduct, ColCostPerKM, ColCostEfficiency, ColTotalCost, ColCostPerOrder, ColFinalRating},
		{"ORD1", "2024-03-01", "Retail", "Domestic", "Electronics", "0.50", "2.0", "100", "100", "4"},
		{"ORD2", "2024-03-04", "SME", "International", "Apparel", "0.10", "3.0", "300", "300", "5"},
		{"ORD3", "2024-03-08", "Retail", "Domestic", "Apparel", "0.40", "1.5", "200", "200", "3"},
		{"ORD4", "2024-03-11", "Enterprise", "International", "Electronics", "0.20", "4.0", "400", "400", "4"},
		{"ORD5", "2024-03-14", "Retail", "Domestic", "Furniture", "0.80", "1.0", "150", "150", "2"},
	})
}

func orderIDs(df dataframe.DataFrame) []string {
	if df.Nrow() == 0 {
		return nil
	}
	ids := df.Col(ColOrderID).Records()
	sort.Strings(ids)
	return ids
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestApplyFilterNoOptionsKeepsAll(t *testing.T) {
	out := ApplyFilter(filterFixture(), FilterOptions{})
	assert.Equal(t, 5, out.Nrow())
}

func TestApplyFilterDateWindow(t *testing.T) {
	out := ApplyFilter(filterFixture(), FilterOptions{
		From: day("2024-03-04"),
		To:   day("2024-03-11"),
	})
	// 区间两端都包含
	assert.Equal(t, []string{"ORD2", "ORD3", "ORD4"}, orderIDs(out))
}

func TestApplyFilterCombined(t *testing.T) {
	out := ApplyFilter(filterFixture(), FilterOptions{
		From:       day("2024-03-01"),
		To:         day("2024-03-10"),
		Segments:   []string{"Retail"},
		RouteTypes: []string{"Domestic"},
	})
	assert.Equal(t, []string{"ORD1", "ORD3"}, orderIDs(out))
}

func TestApplyFilterExplicitEmptySelection(t *testing.T) {
	out := ApplyFilter(filterFixture(), FilterOptions{Segments: []string{}})
	require.Equal(t, 0, out.Nrow())

	// 空子集的汇总应标记无数据
	s := Summarize(out)
	assert.False(t, s.HasData)
}

func TestApplyFilterOutsideDateRange(t *testing.T) {
	out := ApplyFilter(filterFixture(), FilterOptions{
		From: day("2025-01-01"),
		To:   day("2025-12-31"),
	})
	assert.Equal(t, 0, out.Nrow())
}

func TestApplyFilterMonotonic(t *testing.T) {
	narrow := ApplyFilter(filterFixture(), FilterOptions{Segments: []string{"Retail"}})
	wide := ApplyFilter(filterFixture(), FilterOptions{Segments: []string{"Retail", "SME"}})

	// 放宽选择只会增加行，窄结果是宽结果的子集
	require.LessOrEqual(t, narrow.Nrow(), wide.Nrow())
	wideSet := make(map[string]bool)
	for _, id := range orderIDs(wide) {
		wideSet[id] = true
	}
	for _, id := range orderIDs(narrow) {
		assert.True(t, wideSet[id], "宽筛选结果缺少 %s", id)
	}
}

func TestApplyFilterDoesNotMutateInput(t *testing.T) {
	master := filterFixture()
	before := master.Nrow()
	_ = ApplyFilter(master, FilterOptions{Segments: []string{"Retail"}})
	assert.Equal(t, before, master.Nrow())
}

func TestBounds(t *testing.T) {
	b := Bounds(filterFixture())

	assert.Equal(t, "2024-03-01", b.MinDate)
	assert.Equal(t, "2024-03-14", b.MaxDate)
	assert.Equal(t, []string{"Enterprise", "Retail", "SME"}, b.Segments)
	assert.Equal(t, []string{"Domestic", "International"}, b.RouteTypes)
	assert.Equal(t, []string{"Apparel", "Electronics", "Furniture"}, b.Products)
}

func TestDistinctValuesSkipsMissing(t *testing.T) {
	df := dataframe.LoadRecords([][]string{
		{"Order_ID", "Carrier"},
		{"ORD1", "BlueDart"},
		{"ORD2", ""},
		{"ORD3", "BlueDart"},
		{"ORD4", "Delhivery"},
	})
	assert.Equal(t, []string{"BlueDart", "Delhivery"}, DistinctValues(df, "Carrier"))
}
