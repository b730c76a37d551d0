// filter.go 当前视图工作子集的筛选
package processor

import (
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"CostIntelligence/src/utils"
)

// FilterOptions 用户侧的四个筛选条件
// 日期区间两端都包含；零值时间表示该端不限
// 三个类别集合为nil表示全选；显式空集合表示全不选，结果为空集
type FilterOptions struct {
	From       time.Time
	To         time.Time
	Segments   []string
	RouteTypes []string
	Products   []string
}

// ApplyFilter 对主记录集应用筛选，返回新的子集，不修改原集
// 行满足：日期在区间内 且 三个类别字段都在各自选中集合内
func ApplyFilter(master dataframe.DataFrame, opt FilterOptions) dataframe.DataFrame {
	if master.Nrow() == 0 {
		return master
	}

	// 任一维度显式选空即空结果，而不是不过滤
	if emptySelection(opt.Segments) || emptySelection(opt.RouteTypes) || emptySelection(opt.Products) {
		return emptyFrame(master)
	}

	out := master.Filter(dataframe.F{
		Colname:    ColOrderDate,
		Comparator: series.CompFunc,
		Comparando: dateInRange(opt.From, opt.To),
	})

	out = filterIn(out, ColSegment, opt.Segments)
	out = filterIn(out, ColRouteType, opt.RouteTypes)
	out = filterIn(out, ColProduct, opt.Products)
	return out
}

// emptySelection 区分"未指定(全选)"与"显式空选"
func emptySelection(set []string) bool {
	return set != nil && len(set) == 0
}

func filterIn(df dataframe.DataFrame, col string, set []string) dataframe.DataFrame {
	if set == nil || df.Nrow() == 0 {
		return df
	}
	return df.Filter(dataframe.F{
		Colname:    col,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return utils.Contains(set, el.String())
		},
	})
}

func dateInRange(from, to time.Time) func(series.Element) bool {
	return func(el series.Element) bool {
		t, err := time.Parse("2006-01-02", el.String())
		if err != nil {
			return false
		}
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}
}

func emptyFrame(df dataframe.DataFrame) dataframe.DataFrame {
	return df.Filter(dataframe.F{
		Colname:    ColOrderID,
		Comparator: series.CompFunc,
		Comparando: func(series.Element) bool { return false },
	})
}

// FilterBounds 筛选控件的取值范围：观测到的去重取值与日期上下界
type FilterBounds struct {
	MinDate    string   `json:"min_date"`
	MaxDate    string   `json:"max_date"`
	Segments   []string `json:"segments"`
	RouteTypes []string `json:"route_types"`
	Products   []string `json:"products"`
}

// Bounds 枚举主记录集各维度的可选值，供控件默认全选
func Bounds(master dataframe.DataFrame) FilterBounds {
	b := FilterBounds{
		Segments:   DistinctValues(master, ColSegment),
		RouteTypes: DistinctValues(master, ColRouteType),
		Products:   DistinctValues(master, ColProduct),
	}

	dates := DistinctValues(master, ColOrderDate)
	if len(dates) > 0 {
		b.MinDate = dates[0]
		b.MaxDate = dates[len(dates)-1]
	}
	return b
}

// DistinctValues 某列观测到的去重取值，升序
func DistinctValues(df dataframe.DataFrame, col string) []string {
	if df.Nrow() == 0 || !utils.HasColumn(df, col) {
		return nil
	}

	seen := make(map[string]bool)
	var vals []string
	for _, v := range df.Col(col).Records() {
		if v == "" || v == "NaN" || seen[v] {
			continue
		}
		seen[v] = true
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}
