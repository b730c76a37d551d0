// cache.go 主记录集的进程级读通缓存
package processor

import (
	"sync"

	"github.com/go-gota/gota/dataframe"

	"CostIntelligence/src/config"
	"CostIntelligence/src/datasource/file"
)

// SourceProvider 数据源抽象：指纹计算与整体装载
// *file.Loader 是生产实现
type SourceProvider interface {
	Fingerprint() (string, error)
	LoadAll() (file.Sources, error)
}

// MasterCache 以数据源指纹为键缓存BuildMaster的结果
// 构建后的主记录集只读共享，筛选返回新子集，无需再加锁
type MasterCache struct {
	provider SourceProvider
	dcfg     *config.DataConfig

	mu          sync.Mutex
	fingerprint string
	master      dataframe.DataFrame
	valid       bool
}

func NewMasterCache(provider SourceProvider, dcfg *config.DataConfig) *MasterCache {
	return &MasterCache{
		provider: provider,
		dcfg:     dcfg,
	}
}

// Get 返回主记录集，指纹未变时直接命中缓存
// 指纹变化或缓存被失效时重新装载并重建
func (c *MasterCache) Get() (dataframe.DataFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp, err := c.provider.Fingerprint()
	if err != nil {
		// 数据源不可访问时缓存一并失效，带着错误返回空集
		c.valid = false
		return dataframe.DataFrame{}, err
	}

	if c.valid && fp == c.fingerprint {
		return c.master, nil
	}

	src, err := c.provider.LoadAll()
	if err != nil {
		c.valid = false
		return dataframe.DataFrame{}, err
	}

	master, err := BuildMaster(src, c.dcfg)
	if err != nil {
		c.valid = false
		return dataframe.DataFrame{}, err
	}

	c.fingerprint = fp
	c.master = master
	c.valid = true
	return c.master, nil
}

// Invalidate 强制下一次Get重建
func (c *MasterCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}
