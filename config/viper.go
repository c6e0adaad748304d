package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/meshkit/xerrors"
)

// loader 实现 Loader 接口
type loader struct {
	v         *viper.Viper
	opts      *Options
	mu        sync.RWMutex
	loaded    bool
	watches   map[string][]chan Event
	oldValues map[string]any
}

// newLoader 创建一个新的配置加载器（内部使用）
func newLoader(opts ...Option) *loader {
	options := defaultOptions()
	for _, o := range opts {
		o(options)
	}

	return &loader{
		v:         viper.New(),
		opts:      options,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. 配置 Viper
	l.v.SetConfigName(l.opts.Name)
	l.v.SetConfigType(l.opts.FileType)
	for _, path := range l.opts.Paths {
		l.v.AddConfigPath(path)
	}

	// 2. 环境变量设置（最高优先级）
	l.v.SetEnvPrefix(l.opts.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// 3. 尝试加载 .env 文件（高优先级）
	l.loadDotEnv()

	// 4. 加载配置文件（最低优先级），文件不存在不视为错误
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return xerrors.Wrapf(err, "failed to read config file %s", l.opts.Name)
		}
	}

	// 5. 保存当前值作为基线
	l.captureCurrentValues()

	// 6. 启动文件监听（自动启动，无需手动 Start）
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.notifyWatches()
	})
	l.v.WatchConfig()

	l.loaded = true
	return nil
}

// Get 获取原始配置值
func (l *loader) Get(key string) any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体
func (l *loader) Unmarshal(v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	return xerrors.Wrap(l.v.Unmarshal(v), "config: unmarshal failed")
}

// UnmarshalKey 将指定 Key 的配置反序列化到结构体
func (l *loader) UnmarshalKey(key string, v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	if !l.v.IsSet(key) {
		return xerrors.Wrapf(ErrKeyNotFound, "key %q", key)
	}
	return xerrors.Wrapf(l.v.UnmarshalKey(key, v), "config: unmarshal key %q failed", key)
}

// Watch 监听配置变化
//
// 返回的通道在 key 对应的值发生变化时收到事件，ctx 取消后通道关闭。
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return nil, ErrNotLoaded
	}
	ch := make(chan Event, 1)
	l.watches[key] = append(l.watches[key], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		chans := l.watches[key]
		for i, c := range chans {
			if c == ch {
				l.watches[key] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// loadDotEnv 加载 .env 文件到进程环境变量（内部使用）
func (l *loader) loadDotEnv() {
	for _, path := range l.opts.Paths {
		envFile := filepath.Join(path, ".env")
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
			return
		}
	}
}

// captureCurrentValues 保存所有 key 的当前值，作为变更对比基线
func (l *loader) captureCurrentValues() {
	for _, key := range l.v.AllKeys() {
		l.oldValues[key] = l.v.Get(key)
	}
}

// notifyWatches 对比新旧值，向受影响的监听者发送事件
func (l *loader) notifyWatches() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, chans := range l.watches {
		newVal := l.v.Get(key)
		oldVal := l.oldValues[key]
		if reflect.DeepEqual(newVal, oldVal) {
			continue
		}
		event := Event{
			Key:       key,
			Value:     newVal,
			OldValue:  oldVal,
			Timestamp: now,
		}
		for _, ch := range chans {
			select {
			case ch <- event:
			default:
				// 监听者未及时消费，丢弃旧事件避免阻塞热更新路径
			}
		}
	}
	l.captureCurrentValues()
}
