package datapush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"CostIntelligence/src/processor"
)

const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// 钉钉机器人 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// markdownMessage 机器人markdown消息体
type markdownMessage struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
}

// Pusher 把指标汇总推送到钉钉机器人webhook
type Pusher struct {
	WebhookURL string
	client     *http.Client
}

func NewPusher(webhookURL string) *Pusher {
	return &Pusher{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// PushSummary 推送当前筛选下的成本指标汇总
func (p *Pusher) PushSummary(s processor.Summary) error {
	text := formatSummary(s)

	msg := markdownMessage{MsgType: "markdown"}
	msg.Markdown.Title = "物流成本日报"
	msg.Markdown.Text = text

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化推送消息失败: %w", err)
	}

	// 网络抖动时按固定间隔重试
	var lastErr error
	for i := 0; i < RETRY_TIMES; i++ {
		if i > 0 {
			time.Sleep(RETRY_INTERVAL)
		}
		if lastErr = p.post(payload); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("推送失败(重试%d次): %w", RETRY_TIMES, lastErr)
}

func (p *Pusher) post(payload []byte) error {
	resp, err := p.client.Post(p.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("响应异常代码%d", resp.StatusCode)
	}

	var dtResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dtResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if dtResp.ErrCode != 0 {
		return fmt.Errorf("钉钉返回错误: %d %s", dtResp.ErrCode, dtResp.ErrMsg)
	}
	return nil
}

func formatSummary(s processor.Summary) string {
	if !s.HasData {
		return "### 物流成本日报\n\n当前筛选条件下无数据。"
	}
	return fmt.Sprintf(
		"### 物流成本日报\n\n- 订单数: %d\n- 总成本: %s\n- 单均成本: %s\n- 公里均成本: %s\n- 平均成本效率: %s\n",
		s.Orders,
		s.TotalCostDisplay,
		s.AvgCostPerOrderDisplay,
		s.AvgCostPerKMDisplay,
		s.AvgEfficiencyDisplay,
	)
}
