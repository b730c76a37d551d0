package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/robfig/cron"

	"CostIntelligence/src/config"
	"CostIntelligence/src/datapush"
	"CostIntelligence/src/datasource/email"
	"CostIntelligence/src/datasource/file"
	"CostIntelligence/src/processor"
	"CostIntelligence/src/server"
	"CostIntelligence/src/storage"
	"CostIntelligence/src/utils"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logName := cfg.LogName
	if logName == "" {
		logName = "app.log"
	}
	logger, err := storage.NewLogger(logName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	loader := file.NewLoader(cfg, dcfg)
	cache := processor.NewMasterCache(loader, dcfg)

	// 预热：启动时构建一次主记录集，失败只告警不退出，
	// 接口层会把装载错误转成对应的提示
	if _, err := cache.Get(); err != nil {
		logger.Warning("启动时构建主记录集失败: " + err.Error())
	} else {
		logger.Info("主记录集构建完毕")
	}

	// 数据目录监控：数据源文件被更新时使缓存失效
	monitor, err := file.NewSourceMonitor(cfg.DataDir, loader.SourceFiles())
	if err != nil {
		logger.Warning("创建数据目录监控失败: " + err.Error())
	} else {
		go func() {
			err := monitor.Watch(func(name string) {
				logger.Info("数据源更新: " + name + "，缓存失效")
				cache.Invalidate()
			})
			if err != nil {
				logger.Error("数据目录监控异常退出: " + err.Error())
			}
		}()
	}

	// 定时任务：指纹核对兜底（监控不可用的挂载场景）+ 日志轮转检查
	c := cron.New()
	refresh := time.Duration(cfg.RefreshInterval)
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	err = c.AddFunc(fmt.Sprintf("@every %s", refresh), func() {
		if _, err := cache.Get(); err != nil {
			logger.Error("定时核对数据源失败: " + err.Error())
		}
		if err := logger.CheckRotate(cfg.LogMaxSize); err != nil {
			logger.Error(err.Error())
		}
	})
	if err != nil {
		logger.Error("创建定时任务失败: " + err.Error())
		return
	}

	// 邮件数据源：按配置定期拉取数据集附件
	if cfg.Email.Enabled {
		emailClient := email.NewEmailClient(
			cfg.Email.Server,
			cfg.Email.Username,
			cfg.Email.Password)
		handler := email.NewDatasetAttachmentHandler(cfg.Email.TargetSubject, cfg.DataDir)

		interval := time.Duration(cfg.Email.CheckInterval)
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		err = c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			saved, err := email.CheckAndProcessEmails(emailClient, handler, logger)
			if err != nil {
				logger.Error("检查处理邮件失败: " + err.Error())
				return
			}
			if saved > 0 {
				cache.Invalidate()
			}
		})
		if err != nil {
			logger.Error("创建邮件检查任务失败: " + err.Error())
		}
	}

	c.Start()
	defer c.Stop()

	srv := server.New(cache, dcfg, logger, newReporter(cfg, logger))

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		logger.Info("HTTP服务已启动: " + addr)
		if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
			logger.Fatal("HTTP服务退出: " + err.Error())
			os.Exit(1)
		}
	}()

	waitForShutdown(logger)
}

// reporter 把指标汇总推送到钉钉并（可选）邮件发送xlsx报表
type reporter struct {
	cfg    *config.Config
	pusher *datapush.Pusher
	logger *storage.Logger
}

func newReporter(cfg *config.Config, logger *storage.Logger) server.Reporter {
	r := &reporter{cfg: cfg, logger: logger}
	if cfg.Push.Enabled && cfg.Push.WebhookURL != "" {
		r.pusher = datapush.NewPusher(cfg.Push.WebhookURL)
	}
	if r.pusher == nil && len(cfg.SendEmail.Recipients) == 0 {
		return nil // 两个出口都没配置
	}
	return r
}

func (r *reporter) SendReport(summary processor.Summary, subset dataframe.DataFrame) error {
	if r.pusher != nil {
		if err := r.pusher.PushSummary(summary); err != nil {
			return err
		}
	}

	if len(r.cfg.SendEmail.Recipients) > 0 {
		path := filepath.Join(os.TempDir(),
			fmt.Sprintf("cost_report_%s.xlsx", time.Now().Format("20060102150405")))
		if err := utils.SaveToExcel(subset, path); err != nil {
			return err
		}
		defer os.Remove(path)

		body := fmt.Sprintf("截至%s的物流成本报告，详见附件。\n\n总成本: %s\n单均成本: %s",
			time.Now().Format("2006-01-02 15:04"),
			summary.TotalCostDisplay,
			summary.AvgCostPerOrderDisplay)
		if err := email.SendReportMail(r.cfg, "物流成本报告", body, path); err != nil {
			return err
		}
	}
	return nil
}

func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal: " + sig.String() + ", shutting down...")
	logger.Close()
}
