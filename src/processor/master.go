// master.go 主记录集的合并与派生
package processor

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"CostIntelligence/src/config"
	"CostIntelligence/src/datasource/file"
	"CostIntelligence/src/utils"
)

// 主记录集的派生列名
const (
	ColTotalCost       = "Total_Cost"
	ColFinalRating     = "Final_Rating"
	ColCostPerKM       = "Cost_Per_KM"
	ColCostPerOrder    = "Cost_Per_Order"
	ColCostEfficiency  = "Cost_Efficiency_Ratio"
	ColRouteType       = "Route_Type"
	ColOrderDate       = "Order_Date"
	ColRoute           = "Route"
	ColSegment         = "Customer_Segment"
	ColProduct         = "Product_Category"
	ColOrderValue      = "Order_Value_INR"
	ColDistanceKM      = "Distance_KM"
	ColCarrier         = "Carrier"
	ColCustomerRating  = "Customer_Rating"
	ColFeedbackRating  = "Rating"
	ColOrderID         = "Order_ID"
	RouteTypeDomestic  = "Domestic"
	RouteTypeIntl      = "International"
)

// completenessColumns 完整性校验列：任一缺失则整行剔除
// 剔除后每条主记录这五个字段保证都有值
var completenessColumns = []string{
	ColCostPerKM, ColCostEfficiency, ColFinalRating, ColRoute, ColOrderDate,
}

// joinSpec 一次左连接的声明：来源表、拉取列
// 连接顺序即切片顺序，全部以Order_ID为键、以成本表为锚
type joinSpec struct {
	name    string
	columns []string
}

var joinSequence = []joinSpec{
	{file.KeyRoutes, []string{ColOrderID, ColRoute, ColDistanceKM}},
	{file.KeyOrders, []string{ColOrderID, ColOrderDate, ColSegment, ColProduct, ColOrderValue}},
	{file.KeyDelivery, []string{ColOrderID, ColCarrier, ColCustomerRating}},
	{file.KeyFeedback, []string{ColOrderID, ColFeedbackRating}},
}

// BuildMaster 合并五个数据源并派生指标，返回满足完整性约束的主记录集
// 纯函数：相同输入多次调用产出相同结果，可按数据源指纹做进程级缓存
func BuildMaster(src file.Sources, dcfg *config.DataConfig) (dataframe.DataFrame, error) {
	if dcfg == nil {
		dcfg = config.DefaultDataConfig()
	}

	if src.IsEmpty() {
		return dataframe.DataFrame{}, fmt.Errorf("%w: 数据源为空", file.ErrSourceMissing)
	}

	frames := map[string]dataframe.DataFrame{
		file.KeyOrders:   normalizeKey(src.Orders),
		file.KeyDelivery: normalizeKey(src.Delivery),
		file.KeyRoutes:   normalizeKey(src.Routes),
		file.KeyFeedback: normalizeKey(src.Feedback),
	}
	costs := normalizeKey(src.Costs)

	// 成本构成列缺失是结构错误，不能按0处理
	for _, comp := range dcfg.CostComponents {
		if !utils.HasColumn(costs, comp) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: 成本表缺少构成列 %s", file.ErrSchemaMismatch, comp)
		}
	}
	for _, spec := range joinSequence {
		for _, col := range spec.columns {
			if !utils.HasColumn(frames[spec.name], col) {
				return dataframe.DataFrame{}, fmt.Errorf("%w: %s 缺少列 %s", file.ErrSchemaMismatch, spec.name, col)
			}
		}
	}

	// 1. Total_Cost = 七个成本构成列之和（缺失值按0计入）
	master := costs.Mutate(sumColumns(costs, dcfg.CostComponents, ColTotalCost))

	// 2. 依次左连接，保留每一条成本行
	for _, spec := range joinSequence {
		master = master.LeftJoin(frames[spec.name].Select(spec.columns), ColOrderID)
		if master.Error() != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%w: 与 %s 连接失败: %v",
				file.ErrSchemaMismatch, spec.name, master.Error())
		}
	}

	// 3. Final_Rating：客户反馈评分优先，缺失时回落到配送评分
	master = master.Mutate(coalesceRating(master))

	// 4. 派生指标：零距离与零成本先转为缺失再做除法，
	//    非有限值以缺失行的形式在第6步被剔除，绝不进入聚合
	master = deriveMetrics(master)

	// 5. 线路分类
	master = master.Mutate(classifyRoutes(master.Col(ColRoute), dcfg.InternationalCities))

	// 6. 日期规整后按完整性约束剔除
	master = master.Mutate(normalizeDates(master.Col(ColOrderDate), dcfg.DateFormats))
	master = DropIncomplete(master)

	return master, nil
}

// normalizeKey 连接键统一为字符串类型
func normalizeKey(df dataframe.DataFrame) dataframe.DataFrame {
	if !utils.HasColumn(df, ColOrderID) {
		return df
	}
	return df.Mutate(series.New(df.Col(ColOrderID).Records(), series.String, ColOrderID))
}

func sumColumns(df dataframe.DataFrame, columns []string, name string) series.Series {
	total := make([]float64, df.Nrow())
	for _, col := range columns {
		s := df.Col(col)
		for i := 0; i < df.Nrow(); i++ {
			v := s.Elem(i).Float()
			if !math.IsNaN(v) {
				total[i] += v
			}
		}
	}
	return series.New(total, series.Float, name)
}

func coalesceRating(df dataframe.DataFrame) series.Series {
	feedback := df.Col(ColFeedbackRating)
	delivery := df.Col(ColCustomerRating)

	vals := make([]float64, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		v := feedback.Elem(i).Float()
		if math.IsNaN(v) {
			v = delivery.Elem(i).Float()
		}
		vals[i] = v
	}
	return series.New(vals, series.Float, ColFinalRating)
}

func deriveMetrics(df dataframe.DataFrame) dataframe.DataFrame {
	total := df.Col(ColTotalCost)
	dist := df.Col(ColDistanceKM)
	value := df.Col(ColOrderValue)
	n := df.Nrow()

	costPerKM := make([]float64, n)
	costPerOrder := make([]float64, n)
	efficiency := make([]float64, n)

	for i := 0; i < n; i++ {
		t := total.Elem(i).Float()
		d := dist.Elem(i).Float()
		v := value.Elem(i).Float()

		// 距离为0视为缺失，避免除零
		if d == 0 {
			d = math.NaN()
		}
		// 总成本为0同样视为缺失（与零距离同一口径）
		if t == 0 {
			costPerKM[i] = math.NaN()
			efficiency[i] = math.NaN()
		} else {
			costPerKM[i] = utils.Round2(t / d)
			efficiency[i] = utils.Round2(v / t)
		}
		costPerOrder[i] = t
	}

	df = df.Mutate(series.New(costPerKM, series.Float, ColCostPerKM))
	df = df.Mutate(series.New(costPerOrder, series.Float, ColCostPerOrder))
	df = df.Mutate(series.New(efficiency, series.Float, ColCostEfficiency))
	return df
}

// classifyRoutes 线路走廊文本包含任一国际城市名（不区分大小写）则为国际线路
func classifyRoutes(routes series.Series, cities []string) series.Series {
	lowered := make([]string, len(cities))
	for i, c := range cities {
		lowered[i] = strings.ToLower(c)
	}

	types := make([]string, routes.Len())
	for i := 0; i < routes.Len(); i++ {
		types[i] = RouteTypeDomestic
		el := routes.Elem(i)
		if el.IsNA() {
			continue
		}
		route := strings.ToLower(el.String())
		for _, city := range lowered {
			if strings.Contains(route, city) {
				types[i] = RouteTypeIntl
				break
			}
		}
	}
	return series.New(types, series.String, ColRouteType)
}

// normalizeDates 解析订单日期并统一为ISO格式，解析失败置为缺失
func normalizeDates(dates series.Series, formats []string) series.Series {
	vals := make([]string, dates.Len())
	for i := 0; i < dates.Len(); i++ {
		el := dates.Elem(i)
		if el.IsNA() {
			continue
		}
		t, err := utils.ParseDate(el.String(), formats)
		if err != nil {
			continue
		}
		vals[i] = t.Format("2006-01-02")
	}
	return series.New(vals, series.String, ColOrderDate)
}

// DropIncomplete 完整性约束的唯一实现：
// 五个必备字段任一缺失即剔除整行，之后不再有行被修改
func DropIncomplete(df dataframe.DataFrame) dataframe.DataFrame {
	if df.Nrow() == 0 {
		return df
	}
	for _, col := range completenessColumns {
		df = df.Filter(dataframe.F{
			Colname:    col,
			Comparator: series.CompFunc,
			Comparando: notMissing,
		})
	}
	return df
}

func notMissing(el series.Element) bool {
	if el.IsNA() {
		return false
	}
	s := el.String()
	return s != "" && s != "NaN"
}
