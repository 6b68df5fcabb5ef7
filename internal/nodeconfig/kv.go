package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// KV 命名空间化的键值存储契约。固件侧由NVS命名空间实现
// （Preferences的getX/putX），主机侧由YAML文件实现；Store 只隔着
// 这个契约读写，两边共用同一套键名。
type KV interface {
	// Exists 命名空间是否已经存在（首次启动时为false，触发写默认值）
	Exists() bool
	GetString(key, def string) string
	GetUint32(key string, def uint32) uint32
	GetInt32(key string, def int32) int32
	GetFloat32(key string, def float32) float32
	GetBool(key string, def bool) bool
	Set(key string, value any)
	// Commit 把累积的Set落盘
	Commit() error
	// Clear 清空整个命名空间（出厂重置）
	Clear() error
}

// FileKV 文件承载的KV实现：一个命名空间对应一个YAML文件
type FileKV struct {
	path string
	v    *viper.Viper
}

// NewFileKV 创建文件KV
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path 返回底层文件路径
func (f *FileKV) Path() string { return f.path }

// Exists 实现 KV：文件可读且解析成功才算命名空间存在。
// 文件损坏按不存在处理，节点不能因配置坏掉而拒绝启动。
func (f *FileKV) Exists() bool {
	return f.ensure() == nil
}

// GetString 实现 KV
func (f *FileKV) GetString(key, def string) string {
	if f.ensure() != nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetString(key)
}

// GetUint32 实现 KV
func (f *FileKV) GetUint32(key string, def uint32) uint32 {
	if f.ensure() != nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetUint32(key)
}

// GetInt32 实现 KV
func (f *FileKV) GetInt32(key string, def int32) int32 {
	if f.ensure() != nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetInt32(key)
}

// GetFloat32 实现 KV
func (f *FileKV) GetFloat32(key string, def float32) float32 {
	if f.ensure() != nil || !f.v.IsSet(key) {
		return def
	}
	return float32(f.v.GetFloat64(key))
}

// GetBool 实现 KV
func (f *FileKV) GetBool(key string, def bool) bool {
	if f.ensure() != nil || !f.v.IsSet(key) {
		return def
	}
	return f.v.GetBool(key)
}

// Set 实现 KV：只写内存，Commit 时落盘
func (f *FileKV) Set(key string, value any) {
	if f.v == nil {
		f.v = f.newViper()
	}
	f.v.Set(key, value)
}

// Commit 实现 KV
func (f *FileKV) Commit() error {
	if f.v == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := f.v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Clear 实现 KV
func (f *FileKV) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear namespace: %w", err)
	}
	f.v = nil
	return nil
}

// ensure 懒加载：首次访问时读文件
func (f *FileKV) ensure() error {
	if f.v != nil {
		return nil
	}
	v := f.newViper()
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	f.v = v
	return nil
}

func (f *FileKV) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	return v
}

// MemKV 内存KV：主机测试的替身（设计上对应固件测试里的NVS桩）
type MemKV struct {
	data map[string]any
}

// NewMemKV 创建内存KV
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string]any)}
}

// Exists 实现 KV
func (m *MemKV) Exists() bool { return len(m.data) > 0 }

// GetString 实现 KV
func (m *MemKV) GetString(key, def string) string {
	if v, ok := m.data[key].(string); ok {
		return v
	}
	return def
}

// GetUint32 实现 KV
func (m *MemKV) GetUint32(key string, def uint32) uint32 {
	if v, ok := m.data[key].(uint32); ok {
		return v
	}
	return def
}

// GetInt32 实现 KV
func (m *MemKV) GetInt32(key string, def int32) int32 {
	if v, ok := m.data[key].(int32); ok {
		return v
	}
	return def
}

// GetFloat32 实现 KV
func (m *MemKV) GetFloat32(key string, def float32) float32 {
	if v, ok := m.data[key].(float32); ok {
		return v
	}
	return def
}

// GetBool 实现 KV
func (m *MemKV) GetBool(key string, def bool) bool {
	if v, ok := m.data[key].(bool); ok {
		return v
	}
	return def
}

// Set 实现 KV
func (m *MemKV) Set(key string, value any) { m.data[key] = value }

// Commit 实现 KV（内存实现无落盘动作）
func (m *MemKV) Commit() error { return nil }

// Clear 实现 KV
func (m *MemKV) Clear() error {
	m.data = make(map[string]any)
	return nil
}
