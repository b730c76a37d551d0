// data_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DatasetAttachmentHandler 把主题匹配的邮件里的数据集附件保存到数据目录
// 保存动作会触发目录监控，进而使主记录集缓存失效
type DatasetAttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex
}

// 接受的附件扩展名
var acceptedExts = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

func NewDatasetAttachmentHandler(subject, dataDir string) *DatasetAttachmentHandler {
	return &DatasetAttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

func (h *DatasetAttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *DatasetAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 处理单个邮件，返回保存的附件数
func (h *DatasetAttachmentHandler) Handle(e *Email) (int, error) {
	if e == nil || h.isProcessed(e.UID) {
		return 0, nil
	}

	// 主题不匹配的邮件直接跳过
	if !strings.Contains(e.Subject, h.TargetSubject) {
		return 0, nil
	}

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return 0, fmt.Errorf("创建目录失败: %w", err)
	}

	saved := 0
	for _, attachment := range e.Attachments {
		ext := strings.ToLower(filepath.Ext(attachment.Filename))
		if !acceptedExts[ext] {
			continue
		}

		// 只取文件名部分，防止路径穿越
		filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return saved, fmt.Errorf("保存附件失败: %w", err)
		}
		saved++
	}

	if saved > 0 {
		h.markAsProcessed(e.UID)
	}

	return saved, nil
}
