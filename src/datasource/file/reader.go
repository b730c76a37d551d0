// reader.go
package file

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"CostIntelligence/src/config"
	"CostIntelligence/src/utils"
)

// 装载失败的两类错误，调用方用errors.Is区分：
// ErrSourceMissing 数据源文件缺失或不可读（整体装载失败，返回空Sources）
// ErrSchemaMismatch 必需列缺失或连接键重复（当前数据不可用）
var (
	ErrSourceMissing  = errors.New("数据源缺失")
	ErrSchemaMismatch = errors.New("数据源列结构不符")
)

// 五个数据源的固定键名
const (
	KeyOrders   = "orders"
	KeyDelivery = "delivery"
	KeyRoutes   = "routes"
	KeyCosts    = "costs"
	KeyFeedback = "feedback"
)

// sourceKeys 固定顺序，指纹计算与装载都按此遍历
var sourceKeys = []string{KeyOrders, KeyDelivery, KeyRoutes, KeyCosts, KeyFeedback}

// requiredColumns 各数据源必须存在的列（成本构成列另由DataConfig给出）
var requiredColumns = map[string][]string{
	KeyOrders:   {"Order_ID", "Order_Date", "Customer_Segment", "Product_Category", "Order_Value_INR"},
	KeyDelivery: {"Order_ID", "Carrier", "Customer_Rating"},
	KeyRoutes:   {"Order_ID", "Route", "Distance_KM"},
	KeyCosts:    {"Order_ID"},
	KeyFeedback: {"Order_ID", "Rating"},
}

// Sources 五个数据源装载后的DataFrame集合
// 任一数据源装载失败时整体为空值，调用方通过IsEmpty判断
type Sources struct {
	Orders   dataframe.DataFrame
	Delivery dataframe.DataFrame
	Routes   dataframe.DataFrame
	Costs    dataframe.DataFrame
	Feedback dataframe.DataFrame
}

// IsEmpty 判断是否为装载失败时的空结果
func (s Sources) IsEmpty() bool {
	return s.Costs.Ncol() == 0
}

// Loader 数据集装载器：按配置从数据目录读取五个表格文件
type Loader struct {
	dataDir        string
	format         string
	sheetName      string
	files          map[string]string
	costComponents []string
	dcfg           *config.DataConfig
}

func NewLoader(cfg *config.Config, dcfg *config.DataConfig) *Loader {
	files := map[string]string{
		KeyOrders:   "orders.csv",
		KeyDelivery: "delivery_performance.csv",
		KeyRoutes:   "routes_distance.csv",
		KeyCosts:    "cost_breakdown.csv",
		KeyFeedback: "customer_feedback.csv",
	}
	for key, name := range cfg.Sources {
		if name != "" {
			files[key] = name
		}
	}

	format := cfg.SourceFormat
	if format == "" {
		format = "csv"
	}

	return &Loader{
		dataDir:        cfg.DataDir,
		format:         format,
		sheetName:      cfg.SheetName,
		files:          files,
		costComponents: dcfg.CostComponents,
		dcfg:           dcfg,
	}
}

// CostComponents 成本构成列名，供下游计算使用
func (l *Loader) CostComponents() []string {
	return l.costComponents
}

func (l *Loader) path(key string) string {
	return filepath.Join(l.dataDir, l.files[key])
}

// SourceFiles 返回五个数据源文件名（用于监控匹配）
func (l *Loader) SourceFiles() []string {
	names := make([]string, 0, len(l.files))
	for _, name := range l.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fingerprint 计算五个数据源的组合指纹（文件名+大小+修改时间的md5）
// 任一文件不可访问时返回ErrSourceMissing
func (l *Loader) Fingerprint() (string, error) {
	h := md5.New()
	for _, key := range sourceKeys {
		p := l.path(key)
		info, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrSourceMissing, l.files[key], err)
		}
		fmt.Fprintf(h, "%s|%d|%d;", l.files[key], info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// LoadAll 整体装载五个数据源
// 任一数据源不可读时整体失败，返回空Sources与ErrSourceMissing，
// 不会让下游拿到只装载了一部分的状态
func (l *Loader) LoadAll() (Sources, error) {
	frames := make(map[string]dataframe.DataFrame, len(sourceKeys))
	for _, key := range sourceKeys {
		df, err := l.read(key)
		if err != nil {
			return Sources{}, err
		}
		frames[key] = df
	}

	if err := l.validate(frames); err != nil {
		return Sources{}, err
	}

	return Sources{
		Orders:   frames[KeyOrders],
		Delivery: frames[KeyDelivery],
		Routes:   frames[KeyRoutes],
		Costs:    frames[KeyCosts],
		Feedback: frames[KeyFeedback],
	}, nil
}

func (l *Loader) read(key string) (dataframe.DataFrame, error) {
	p := l.path(key)

	var df dataframe.DataFrame
	switch l.format {
	case "xlsx":
		var err error
		df, err = readXLSX(p, l.sheetName)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s: %v", ErrSourceMissing, l.files[key], err)
		}
	default:
		f, err := os.Open(p)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s: %v", ErrSourceMissing, l.files[key], err)
		}
		defer f.Close()

		df = dataframe.ReadCSV(f)
		if df.Error() != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s: %v", ErrSourceMissing, l.files[key], df.Error())
		}
	}

	df = l.applyAliases(df)

	// 连接键统一为字符串，避免各表类型推断不一致导致连接失败
	if utils.HasColumn(df, "Order_ID") {
		df = df.Mutate(series.New(df.Col("Order_ID").Records(), series.String, "Order_ID"))
	}
	return df, nil
}

// applyAliases 按DataConfig将别名列改为标准列名
func (l *Loader) applyAliases(df dataframe.DataFrame) dataframe.DataFrame {
	if l.dcfg == nil || len(l.dcfg.ColumnAlias) == 0 {
		return df
	}
	for _, name := range df.Names() {
		if canonical := l.dcfg.GetColumnAlias(name); canonical != name {
			df = df.Rename(canonical, name)
		}
	}
	return df
}

// validate 检查各数据源的必需列与连接键唯一性
func (l *Loader) validate(frames map[string]dataframe.DataFrame) error {
	for _, key := range sourceKeys {
		df := frames[key]
		required := requiredColumns[key]
		if key == KeyCosts {
			required = append(append([]string{}, required...), l.costComponents...)
		}
		for _, col := range required {
			if !utils.HasColumn(df, col) {
				return fmt.Errorf("%w: %s 缺少列 %s", ErrSchemaMismatch, l.files[key], col)
			}
		}

		// 每次连接都要求每个键至多一行
		if err := checkUniqueKeys(df); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, l.files[key], err)
		}
	}
	return nil
}

func checkUniqueKeys(df dataframe.DataFrame) error {
	seen := make(map[string]bool, df.Nrow())
	for _, id := range df.Col("Order_ID").Records() {
		if seen[id] {
			return fmt.Errorf("连接键 Order_ID 重复: %s", id)
		}
		seen[id] = true
	}
	return nil
}

func readXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("打开xlsx失败: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("excel文件中没有工作表")
	}

	sheet := xlFile.Sheet[sheetName]
	if sheet == nil {
		sheet = xlFile.Sheets[0]
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
// 首行为标题行，其余为数据
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) < 2 {
		return dataframe.New(), fmt.Errorf("工作表没有数据行")
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, cell.Value)
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for _, row := range sheet.Rows[1:] {
		for i := range headers {
			val := ""
			if i < len(row.Cells) {
				val = row.Cells[i].Value
			}
			columns[i] = append(columns[i], val)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	return dataframe.New(seriesList...), nil
}
