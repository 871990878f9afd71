package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string `mapstructure:"port"`
	GRPCPort   string `mapstructure:"grpc_port"`
	InstanceID string `mapstructure:"instance_id"`

	Storage    StorageConfig  `mapstructure:"storage"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`

	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Attachment AttachmentConfig `mapstructure:"attachment"`
	JWT        JWTConfig        `mapstructure:"jwt"`
}

// NotifyWorker definition notify_worker YAML structure
type NotifyWorker struct {
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`

	ThrottleWindow time.Duration `mapstructure:"throttle_window"`
	Prefetch       int           `mapstructure:"prefetch"`
}

// StorageDriver message store backend
type StorageDriver string

const (
	// StorageMongo messages persisted in MongoDB
	StorageMongo StorageDriver = "mongo"
	// StorageMemory messages kept in process, local runs only
	StorageMemory StorageDriver = "memory"
)

// StorageConfig selects the message store backend
type StorageConfig struct {
	Driver StorageDriver `mapstructure:"driver"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr 單節點位址, 沒有設定 sentinel 時使用
	Addr     string        `mapstructure:"addr"`
	Relay    bool          `mapstructure:"relay"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	BucketName    string `mapstructure:"bucket_name"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string `mapstructure:"ip"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Queue         string `mapstructure:"queue"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// GatewayConfig websocket gateway limits
type GatewayConfig struct {
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	MaxFrameBytes int64         `mapstructure:"max_frame_bytes"`
	MaxBodyChars  int           `mapstructure:"max_body_chars"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

// WithDefaults fills zero values
func (g GatewayConfig) WithDefaults() GatewayConfig {
	if g.PingInterval <= 0 {
		g.PingInterval = 25 * time.Second
	}
	if g.PongWait <= 0 {
		g.PongWait = 60 * time.Second
	}
	// ping 一定要比 pong 等待時間短, 否則正常連線也會逾時
	if g.PingInterval >= g.PongWait {
		g.PingInterval = g.PongWait * 9 / 10
	}
	if g.WriteWait <= 0 {
		g.WriteWait = 10 * time.Second
	}
	if g.SendBuffer <= 0 {
		g.SendBuffer = 64
	}
	if g.MaxFrameBytes <= 0 {
		g.MaxFrameBytes = 64 << 10
	}
	if g.MaxBodyChars <= 0 {
		g.MaxBodyChars = 4000
	}
	if g.RatePerSecond <= 0 {
		g.RatePerSecond = 5
	}
	if g.RateBurst <= 0 {
		g.RateBurst = 10
	}
	return g
}

// AttachmentConfig attachment upload policy
type AttachmentConfig struct {
	MaxImageBytes   int64         `mapstructure:"max_image_bytes"`
	MaxVideoBytes   int64         `mapstructure:"max_video_bytes"`
	MaxAudioBytes   int64         `mapstructure:"max_audio_bytes"`
	SlotTTL         time.Duration `mapstructure:"slot_ttl"`
	MaxSlotsPerHour int           `mapstructure:"max_slots_per_hour"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
}

// WithDefaults fills zero values
func (a AttachmentConfig) WithDefaults() AttachmentConfig {
	if a.MaxImageBytes <= 0 {
		a.MaxImageBytes = 20 << 20
	}
	if a.MaxVideoBytes <= 0 {
		a.MaxVideoBytes = 500 << 20
	}
	if a.MaxAudioBytes <= 0 {
		a.MaxAudioBytes = 100 << 20
	}
	if a.SlotTTL <= 0 {
		a.SlotTTL = 15 * time.Minute
	}
	if a.MaxSlotsPerHour <= 0 {
		a.MaxSlotsPerHour = 60
	}
	return a
}

// JWTConfig definition token verify setting
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}
