package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CostIntelligence/src/config"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

// seedDataDir 在临时目录写入五个最小可用的数据源文件
func seedDataDir(t *testing.T) string {
	dir := t.TempDir()

	writeSource(t, dir, "orders.csv",
		"Order_ID,Order_Date,Customer_Segment,Product_Category,Order_Value_INR\n"+
			"ORD1,2024-01-01,Retail,Electronics,500\n"+
			"ORD2,2024-01-05,SME,Apparel,600\n")

	writeSource(t, dir, "delivery_performance.csv",
		"Order_ID,Carrier,Customer_Rating\n"+
			"ORD1,BlueDart,4\n"+
			"ORD2,Delhivery,5\n")

	writeSource(t, dir, "routes_distance.csv",
		"Order_ID,Route,Distance_KM\n"+
			"ORD1,Mumbai-Delhi,500\n"+
			"ORD2,Mumbai-Singapore,3000\n")

	writeSource(t, dir, "cost_breakdown.csv",
		"Order_ID,Fuel_Cost,Labor_Cost,Vehicle_Maintenance,Insurance,Packaging_Cost,Technology_Platform_Fee,Other_Overhead\n"+
			"ORD1,10,20,30,5,5,20,10\n"+
			"ORD2,50,50,50,25,25,50,50\n")

	writeSource(t, dir, "customer_feedback.csv",
		"Order_ID,Rating\n"+
			"ORD1,5\n"+
			"ORD2,4\n")

	return dir
}

func newTestLoader(dir string) *Loader {
	cfg := &config.Config{DataDir: dir}
	return NewLoader(cfg, config.DefaultDataConfig())
}

func TestLoadAll(t *testing.T) {
	loader := newTestLoader(seedDataDir(t))

	src, err := loader.LoadAll()
	require.NoError(t, err)
	require.False(t, src.IsEmpty())

	assert.Equal(t, 2, src.Orders.Nrow())
	assert.Equal(t, 2, src.Delivery.Nrow())
	assert.Equal(t, 2, src.Routes.Nrow())
	assert.Equal(t, 2, src.Costs.Nrow())
	assert.Equal(t, 2, src.Feedback.Nrow())

	// 连接键统一为字符串
	assert.Equal(t, series.String, src.Orders.Col("Order_ID").Type())
}

func TestLoadAllMissingSourceFailsWhole(t *testing.T) {
	dir := seedDataDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "customer_feedback.csv")))

	loader := newTestLoader(dir)
	src, err := loader.LoadAll()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceMissing)
	// 整体失败，不允许部分装载的状态泄漏
	assert.True(t, src.IsEmpty())
}

func TestLoadAllMissingColumnIsSchemaError(t *testing.T) {
	dir := seedDataDir(t)
	writeSource(t, dir, "routes_distance.csv",
		"Order_ID,Route\nORD1,Mumbai-Delhi\n")

	loader := newTestLoader(dir)
	_, err := loader.LoadAll()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadAllDuplicateKeyIsSchemaError(t *testing.T) {
	dir := seedDataDir(t)
	writeSource(t, dir, "customer_feedback.csv",
		"Order_ID,Rating\nORD1,5\nORD1,4\n")

	loader := newTestLoader(dir)
	_, err := loader.LoadAll()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadAllMissingCostComponentIsSchemaError(t *testing.T) {
	dir := seedDataDir(t)
	writeSource(t, dir, "cost_breakdown.csv",
		"Order_ID,Fuel_Cost\nORD1,10\nORD2,50\n")

	loader := newTestLoader(dir)
	_, err := loader.LoadAll()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadAllAppliesColumnAliases(t *testing.T) {
	dir := seedDataDir(t)
	writeSource(t, dir, "customer_feedback.csv",
		"OrderID,Feedback_Rating\nORD1,5\nORD2,4\n")

	dcfg := config.DefaultDataConfig()
	dcfg.SetColumnAlias("OrderID", "Order_ID")
	dcfg.SetColumnAlias("Feedback_Rating", "Rating")

	loader := NewLoader(&config.Config{DataDir: dir}, dcfg)
	src, err := loader.LoadAll()

	require.NoError(t, err)
	assert.Contains(t, src.Feedback.Names(), "Order_ID")
	assert.Contains(t, src.Feedback.Names(), "Rating")
}

func TestFingerprintStableAndChangeSensitive(t *testing.T) {
	dir := seedDataDir(t)
	loader := newTestLoader(dir)

	fp1, err := loader.Fingerprint()
	require.NoError(t, err)
	fp2, err := loader.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	// 修改一个文件后指纹变化
	time.Sleep(10 * time.Millisecond)
	writeSource(t, dir, "orders.csv",
		"Order_ID,Order_Date,Customer_Segment,Product_Category,Order_Value_INR\n"+
			"ORD9,2024-02-01,Retail,Electronics,900\n")

	fp3, err := loader.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}

func TestFingerprintMissingFile(t *testing.T) {
	dir := seedDataDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "orders.csv")))

	loader := newTestLoader(dir)
	_, err := loader.Fingerprint()
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestSourceFilesRespectsOverrides(t *testing.T) {
	cfg := &config.Config{
		DataDir: ".",
		Sources: map[string]string{KeyOrders: "my_orders.csv"},
	}
	loader := NewLoader(cfg, config.DefaultDataConfig())

	names := loader.SourceFiles()
	assert.Contains(t, names, "my_orders.csv")
	assert.NotContains(t, names, "orders.csv")
	assert.Len(t, names, 5)
}
