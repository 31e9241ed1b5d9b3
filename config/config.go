package config

import (
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	App        App           `yaml:"app"`
	Server     Server        `yaml:"server"`
	Generation Generation    `yaml:"generation"`
	Paths      Paths         `yaml:"paths"`
	Queue      *RabbitMQ     `yaml:"rabbitmq"`
	Storage    *minio.Client `yaml:"storage"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	// Workers caps the number of jobs orchestrated at once and the queue
	// consumer pool size.
	Workers int `yaml:"workers"`
}

// Generation configures the external async video generation service.
type Generation struct {
	BaseURL      string        `yaml:"base_url"`
	ModelID      string        `yaml:"model_id"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Timeout bounds the whole wait for one generation; exceeding it fails
	// the job with a timeout classification.
	Timeout time.Duration `yaml:"timeout"`
}

// Paths locates the local data tree: keyframes, working video files, and
// the serialized record database.
type Paths struct {
	DataDir      string `yaml:"data_dir"`
	KeyframesDir string `yaml:"keyframes_dir"`
	VideosDir    string `yaml:"videos_dir"`
	DatabaseFile string `yaml:"database_file"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("server.workers", 4)
	viper.SetDefault("generation.model_id", "luma.ray-v2:0")
	viper.SetDefault("generation.poll_interval", "15s")
	viper.SetDefault("generation.timeout", "30m")
	viper.SetDefault("paths.data_dir", "data")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: viper.GetBool("minio.secure"),
	})
	if err != nil {
		return nil, err
	}

	dataDir := viper.GetString("paths.data_dir")
	paths := Paths{
		DataDir:      dataDir,
		KeyframesDir: filepath.Join(dataDir, "keyframes"),
		VideosDir:    filepath.Join(dataDir, "videos"),
		DatabaseFile: filepath.Join(dataDir, "database.json"),
	}
	if v := viper.GetString("paths.keyframes_dir"); v != "" {
		paths.KeyframesDir = v
	}
	if v := viper.GetString("paths.videos_dir"); v != "" {
		paths.VideosDir = v
	}
	if v := viper.GetString("paths.database_file"); v != "" {
		paths.DatabaseFile = v
	}

	return &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Generation: Generation{
			BaseURL:      viper.GetString("generation.base_url"),
			ModelID:      viper.GetString("generation.model_id"),
			APIKey:       viper.GetString("generation.api_key"),
			PollInterval: viper.GetDuration("generation.poll_interval"),
			Timeout:      viper.GetDuration("generation.timeout"),
		},
		Paths:   paths,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
