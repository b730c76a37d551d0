// monitor.go
package file

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceMonitor 监控数据目录，数据源文件被写入或替换时触发回调
// 回调通常用于使主记录集缓存失效
type SourceMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	targets  map[string]bool
	lastMod  time.Time
	mu       sync.Mutex
}

func NewSourceMonitor(dir string, sourceFiles []string) (*SourceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	targets := make(map[string]bool, len(sourceFiles))
	for _, name := range sourceFiles {
		targets[name] = true
	}

	return &SourceMonitor{
		watchDir: dir,
		watcher:  watcher,
		targets:  targets,
	}, nil
}

func (m *SourceMonitor) Close() error {
	return m.watcher.Close()
}

// Watch 阻塞监听，handler收到被更新的文件名
func (m *SourceMonitor) Watch(handler func(string)) error {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			name := filepath.Base(event.Name)
			if !m.targets[name] {
				continue
			}

			// 同一次保存可能触发多个事件，200ms内去重
			m.mu.Lock()
			now := time.Now()
			if now.Sub(m.lastMod) > 200*time.Millisecond {
				m.lastMod = now
				go handler(name)
			}
			m.mu.Unlock()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
