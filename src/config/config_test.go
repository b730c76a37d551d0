package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFiles(t *testing.T, cfgJSON, dcfgJSON string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfgJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"), []byte(dcfgJSON), 0644))
	return dir
}

func TestLoadConfigs(t *testing.T) {
	dir := writeConfigFiles(t, `{
		"data_dir": "./data",
		"sources": {"orders": "my_orders.csv"},
		"source_format": "csv",
		"server": {"addr": ":9090"},
		"log_name": "cost.log",
		"log_max_size": "10 * 1024 * 1024",
		"refresh_interval": "5m",
		"email": {"enabled": true, "check_interval": "10m"}
	}`, `{
		"cost_components": ["Fuel_Cost", "Labor_Cost"],
		"international_cities": ["Singapore"],
		"column_alias": {"OrderID": "Order_ID"}
	}`)

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "my_orders.csv", cfg.Sources["orders"])
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.RefreshInterval))
	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, 10*time.Minute, time.Duration(cfg.Email.CheckInterval))

	assert.Equal(t, []string{"Fuel_Cost", "Labor_Cost"}, dcfg.CostComponents)
	assert.Equal(t, []string{"Singapore"}, dcfg.InternationalCities)
	// 未配置的口径取缺省
	assert.NotEmpty(t, dcfg.DateFormats)
	assert.Equal(t, "Order_ID", dcfg.GetColumnAlias("OrderID"))
}

func TestLoadConfigsMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
	assert.Error(t, err)
}

func TestLoadConfigsInvalidJSON(t *testing.T) {
	dir := writeConfigFiles(t, `{ invalid`, `{}`)
	_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
	assert.Error(t, err)
}

func TestDefaultDataConfig(t *testing.T) {
	dc := DefaultDataConfig()

	assert.Len(t, dc.CostComponents, 7)
	assert.Contains(t, dc.CostComponents, "Technology_Platform_Fee")
	assert.Equal(t, []string{"Singapore", "Dubai", "Hong Kong", "Bangkok"}, dc.InternationalCities)
	assert.NotEmpty(t, dc.DateFormats)
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"90s"`), &d))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}

func TestDurationRejectsBadInput(t *testing.T) {
	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`42`), &d))
}

func TestColumnAlias(t *testing.T) {
	dc := DefaultDataConfig()

	// 未登记的列名原样返回
	assert.Equal(t, "Route", dc.GetColumnAlias("Route"))

	dc.SetColumnAlias("Route_Name", "Route")
	assert.Equal(t, "Route", dc.GetColumnAlias("Route_Name"))
}
