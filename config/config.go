package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config 服务配置，全部来自环境变量（支持 .env 文件）
type Config struct {
	// Addr HTTP 监听地址
	Addr string `env:"SAM2CUT_ADDR" envDefault:":8080"`

	// ComfyURL ComfyUI 服务根地址（SAM2 模型跑在那边）
	ComfyURL string `env:"SAM2CUT_COMFY_URL" envDefault:"http://127.0.0.1:8188"`
	// SamModel SAM2 权重文件名，空则用工作流模板里的默认值
	SamModel string `env:"SAM2CUT_SAM_MODEL" envDefault:"sam2.1_hiera_base_plus.safetensors"`
	// PollInterval 轮询 ComfyUI 任务状态的间隔
	PollInterval time.Duration `env:"SAM2CUT_POLL_INTERVAL" envDefault:"500ms"`
	// SegmentTimeout 单次分割调用的超时
	SegmentTimeout time.Duration `env:"SAM2CUT_SEGMENT_TIMEOUT" envDefault:"120s"`

	// SessionTTL 会话闲置多久后回收
	SessionTTL time.Duration `env:"SAM2CUT_SESSION_TTL" envDefault:"30m"`
	// SweepSpec 回收任务的 cron 表达式
	SweepSpec string `env:"SAM2CUT_SWEEP_SPEC" envDefault:"@every 1m"`

	// MaxUploadMB 上传图片的大小上限（MB）
	MaxUploadMB int64 `env:"SAM2CUT_MAX_UPLOAD_MB" envDefault:"20"`
	// MaxImageSide 送模型前图片最长边的上限，超出按比例缩小
	MaxImageSide int `env:"SAM2CUT_MAX_IMAGE_SIDE" envDefault:"1024"`

	// Debug 打开调试日志和 gin 的调试模式
	Debug bool `env:"SAM2CUT_DEBUG" envDefault:"false"`
}

// Load 读取配置。.env 文件不存在时忽略
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// MaxUploadBytes 上传大小上限（字节）
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
