// aggregate.go 工作子集上的汇总归约，产出交给外部渲染方的表形数据
package processor

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"CostIntelligence/src/utils"
)

// topRouteLimit 线路成本榜单保留的最贵线路数
const topRouteLimit = 15

var printer = message.NewPrinter(language.English)

// Summary 核心指标汇总
// 空子集时HasData为false，数值字段无意义，渲染方应显示"无数据"
type Summary struct {
	HasData            bool    `json:"has_data"`
	Orders             int     `json:"orders"`
	TotalCost          float64 `json:"total_cost"`
	AvgCostPerOrder    float64 `json:"avg_cost_per_order"`
	AvgCostPerKM       float64 `json:"avg_cost_per_km"`
	AvgEfficiencyRatio float64 `json:"avg_efficiency_ratio"`

	// 千分位格式化后的显示文本，如 "12,345 INR"
	TotalCostDisplay       string `json:"total_cost_display"`
	AvgCostPerOrderDisplay string `json:"avg_cost_per_order_display"`
	AvgCostPerKMDisplay    string `json:"avg_cost_per_km_display"`
	AvgEfficiencyDisplay   string `json:"avg_efficiency_display"`
}

// CategoryTable 类目-数值对的表，饼图与条形图共用的入参形状
type CategoryTable struct {
	Title       string    `json:"title"`
	XLabel      string    `json:"x_label"`
	YLabel      string    `json:"y_label"`
	Orientation string    `json:"orientation"` // h 或 v
	Labels      []string  `json:"labels"`
	Values      []float64 `json:"values"`
	HasData     bool      `json:"has_data"`
}

// ScatterPoint 散点图中的一条主记录投影
type ScatterPoint struct {
	TotalCost float64 `json:"total_cost"`
	Rating    float64 `json:"final_rating"`
	Segment   string  `json:"customer_segment"`
}

// ScatterTable 成本-满意度散点数据（逐行投影，无聚合）
type ScatterTable struct {
	Title   string         `json:"title"`
	Points  []ScatterPoint `json:"points"`
	HasData bool           `json:"has_data"`
}

// Summarize 当前子集的总成本与三个均值指标
func Summarize(df dataframe.DataFrame) Summary {
	if df.Nrow() == 0 {
		return Summary{HasData: false}
	}

	s := Summary{
		HasData:            true,
		Orders:             df.Nrow(),
		TotalCost:          df.Col(ColTotalCost).Sum(),
		AvgCostPerOrder:    df.Col(ColCostPerOrder).Mean(),
		AvgCostPerKM:       df.Col(ColCostPerKM).Mean(),
		AvgEfficiencyRatio: df.Col(ColCostEfficiency).Mean(),
	}

	s.TotalCostDisplay = printer.Sprintf("%v INR", number.Decimal(s.TotalCost, number.MaxFractionDigits(0)))
	s.AvgCostPerOrderDisplay = printer.Sprintf("%v INR", decimal2(s.AvgCostPerOrder))
	s.AvgCostPerKMDisplay = printer.Sprintf("%v INR", decimal2(s.AvgCostPerKM))
	s.AvgEfficiencyDisplay = printer.Sprintf("%vx", decimal2(s.AvgEfficiencyRatio))
	return s
}

func decimal2(v float64) number.Formatter {
	return number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2))
}

// CostBreakdown 七个成本构成的分项合计（饼图）
func CostBreakdown(df dataframe.DataFrame, components []string) CategoryTable {
	t := CategoryTable{
		Title:       "Overall Cost Breakdown",
		Orientation: "v",
		HasData:     df.Nrow() > 0,
	}
	if !t.HasData {
		return t
	}

	for _, comp := range components {
		t.Labels = append(t.Labels, comp)
		t.Values = append(t.Values, df.Col(comp).Sum())
	}
	return t
}

// CostByProduct 各产品类目的平均单均成本，按值升序（横向条形图）
func CostByProduct(df dataframe.DataFrame) CategoryTable {
	t := CategoryTable{
		Title:       "Avg. Cost-per-Order by Product",
		XLabel:      ColCostPerOrder,
		YLabel:      ColProduct,
		Orientation: "h",
	}
	t.Labels, t.Values = groupMean(df, ColProduct, ColCostPerOrder)
	t.HasData = len(t.Labels) > 0
	return t
}

// EfficiencyBySegment 各客户分层的平均成本效率，按值升序（纵向条形图）
func EfficiencyBySegment(df dataframe.DataFrame) CategoryTable {
	t := CategoryTable{
		Title:       "Cost Efficiency by Customer Segment",
		XLabel:      ColSegment,
		YLabel:      ColCostEfficiency,
		Orientation: "v",
	}
	t.Labels, t.Values = groupMean(df, ColSegment, ColCostEfficiency)
	t.HasData = len(t.Labels) > 0
	return t
}

// CostRatingScatter 总成本-最终评分散点，按客户分层着色
func CostRatingScatter(df dataframe.DataFrame) ScatterTable {
	t := ScatterTable{
		Title:   "Cost vs. Customer Satisfaction",
		HasData: df.Nrow() > 0,
	}
	if !t.HasData {
		return t
	}

	total := df.Col(ColTotalCost)
	rating := df.Col(ColFinalRating)
	segment := df.Col(ColSegment)
	for i := 0; i < df.Nrow(); i++ {
		t.Points = append(t.Points, ScatterPoint{
			TotalCost: total.Elem(i).Float(),
			Rating:    rating.Elem(i).Float(),
			Segment:   segment.Elem(i).String(),
		})
	}
	return t
}

// TopRoutesByCostPerKM 指定线路类型内各线路的平均公里成本
// 升序排列后只保留尾部的15条最贵线路
func TopRoutesByCostPerKM(df dataframe.DataFrame, routeType string) CategoryTable {
	t := CategoryTable{
		Title:       "Most Expensive " + routeType + " Routes",
		XLabel:      ColCostPerKM,
		YLabel:      ColRoute,
		Orientation: "h",
	}

	if df.Nrow() == 0 {
		return t
	}
	subset := df.Filter(dataframe.F{
		Colname:    ColRouteType,
		Comparator: series.Eq,
		Comparando: routeType,
	})

	labels, values := groupMean(subset, ColRoute, ColCostPerKM)
	if len(labels) > topRouteLimit {
		labels = labels[len(labels)-topRouteLimit:]
		values = values[len(values)-topRouteLimit:]
	}

	t.Labels, t.Values = labels, values
	t.HasData = len(t.Labels) > 0
	return t
}

// groupMean 按groupCol分组求valueCol均值，按均值升序返回
// 列缺失时返回空结果而不是让gota在聚合内部崩溃
func groupMean(df dataframe.DataFrame, groupCol, valueCol string) ([]string, []float64) {
	if df.Nrow() == 0 || !utils.HasColumn(df, groupCol) || !utils.HasColumn(df, valueCol) {
		return nil, nil
	}

	agg := df.GroupBy(groupCol).Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_MEAN},
		[]string{valueCol},
	)
	if agg.Error() != nil || agg.Nrow() == 0 {
		return nil, nil
	}

	meanCol := valueCol + "_MEAN"
	agg = agg.Arrange(dataframe.Sort(meanCol))

	labels := agg.Col(groupCol).Records()
	values := agg.Col(meanCol).Float()
	return labels, values
}
