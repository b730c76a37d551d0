package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir string `json:"data_dir"` // 五个数据集所在目录

	// Sources 五个数据源的文件名，键固定为
	// orders / delivery / routes / costs / feedback
	Sources map[string]string `json:"sources"`

	SourceFormat string `json:"source_format"` // csv 或 xlsx
	SheetName    string `json:"sheet_name"`    // xlsx 格式时的工作表名

	Server struct {
		Addr string `json:"addr"` // HTTP监听地址，如 ":8080"
	} `json:"server"`

	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`

	RefreshInterval Duration `json:"refresh_interval"` // 定时核对数据指纹的间隔

	Email struct {
		Enabled       bool     `json:"enabled"`
		Server        string   `json:"server"`         // IMAP服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	SendEmail struct {
		Server     string   `json:"server"` // SMTP服务器地址
		Username   string   `json:"username"`
		Password   string   `json:"password"`
		Recipients []string `json:"recipients"` // 报告收件人
	} `json:"send_email"`

	Push struct {
		Enabled    bool   `json:"enabled"`
		WebhookURL string `json:"webhook_url"` // 钉钉机器人webhook
	} `json:"push"`
}

// DataConfig 数据口径配置：成本构成列、国际城市表、日期格式
type DataConfig struct {
	CostComponents      []string          `json:"cost_components"`
	InternationalCities []string          `json:"international_cities"`
	DateFormats         []string          `json:"date_formats"`
	ColumnAlias         map[string]string `json:"column_alias"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	dcfg.applyDefaults()
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyDefaults 数据口径缺省值：与上游仪表盘保持一致
func (dc *DataConfig) applyDefaults() {
	if len(dc.CostComponents) == 0 {
		dc.CostComponents = []string{
			"Fuel_Cost", "Labor_Cost", "Vehicle_Maintenance",
			"Insurance", "Packaging_Cost", "Technology_Platform_Fee",
			"Other_Overhead",
		}
	}
	if len(dc.InternationalCities) == 0 {
		dc.InternationalCities = []string{"Singapore", "Dubai", "Hong Kong", "Bangkok"}
	}
	if len(dc.DateFormats) == 0 {
		dc.DateFormats = []string{
			"2006-01-02",
			"2006-01-02 15:04:05",
			"2006/01/02",
			"2006/01/02 15:04:05",
			"02-01-2006",
			"01/02/2006",
		}
	}
}

// DefaultDataConfig 返回全部取缺省口径的数据配置
func DefaultDataConfig() *DataConfig {
	dc := &DataConfig{}
	dc.applyDefaults()
	return dc
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (dc *DataConfig) GetColumnAlias(colName string) string {
	mu.RLock()
	defer mu.RUnlock()
	if alias, ok := dc.ColumnAlias[colName]; ok {
		return alias
	}
	return colName
}

func (dc *DataConfig) SetColumnAlias(colName, value string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.ColumnAlias == nil {
		dc.ColumnAlias = make(map[string]string)
	}
	dc.ColumnAlias[colName] = value
}
