package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		Mode         string   `yaml:"mode"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Storage struct {
		UploadDir string `yaml:"upload_dir"`
		OutputDir string `yaml:"output_dir"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"storage"`
	Gemini struct {
		APIKey     string `yaml:"api_key"`
		TextModel  string `yaml:"text_model"`
		ImageModel string `yaml:"image_model"`
	} `yaml:"gemini"`
	ElevenLabs struct {
		APIKey  string `yaml:"api_key"`
		VoiceID string `yaml:"voice_id"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"elevenlabs"`
	Media struct {
		FFmpeg      string  `yaml:"ffmpeg"`
		FFprobe     string  `yaml:"ffprobe"`
		FontPath    string  `yaml:"font_path"`
		FPS         int     `yaml:"fps"`
		Bitrate     string  `yaml:"bitrate"`
		Width       int     `yaml:"width"`
		Height      int     `yaml:"height"`
		MaxDuration float64 `yaml:"max_duration"`
	} `yaml:"media"`
	Music struct {
		DefaultMood     string              `yaml:"default_mood"`
		DefaultVolumeDB float64             `yaml:"default_volume_db"`
		Library         map[string][]string `yaml:"library"`
	} `yaml:"music"`
	Pipeline struct {
		MaxHealAttempts int `yaml:"max_heal_attempts"`
		TitleVariants   int `yaml:"title_variants"`
	} `yaml:"pipeline"`
	Redis struct {
		Addr        string `yaml:"addr"`
		Password    string `yaml:"password"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"redis"`
	MinIO struct {
		Enabled   bool   `yaml:"enabled"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
}

var AppConfig *Config

// InitConfig loads config/config.yaml into AppConfig and exits on failure.
func InitConfig() {
	cfg, err := Load("config/config.yaml")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	AppConfig = cfg
}

// Load reads the YAML file at path, overlays a local .env and the
// environment, and fills defaults for anything left empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.MySQL.DSN, "MYSQL_DSN")
	override(&c.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	override(&c.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	override(&c.MinIO.SecretKey, "MINIO_SECRET_KEY")
	override(&c.Log.Mode, "LOG_MODE")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8000"
	}
	if len(c.Server.AllowOrigins) == 0 {
		c.Server.AllowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./uploads"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "./outputs"
	}
	if c.Storage.StaticDir == "" {
		c.Storage.StaticDir = "./static"
	}
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = "gemini-2.0-flash-exp"
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = "gemini-2.0-flash-exp"
	}
	if c.ElevenLabs.Model == "" {
		c.ElevenLabs.Model = "eleven_multilingual_v2"
	}
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Media.FFmpeg == "" {
		c.Media.FFmpeg = "ffmpeg"
	}
	if c.Media.FFprobe == "" {
		c.Media.FFprobe = "ffprobe"
	}
	if c.Media.FPS <= 0 {
		c.Media.FPS = 30
	}
	if c.Media.Bitrate == "" {
		c.Media.Bitrate = "8000k"
	}
	if c.Media.Width <= 0 {
		c.Media.Width = 1080
	}
	if c.Media.Height <= 0 {
		c.Media.Height = 1920
	}
	if c.Media.MaxDuration <= 0 {
		c.Media.MaxDuration = 60
	}
	if c.Music.DefaultMood == "" {
		c.Music.DefaultMood = "dramatic"
	}
	if c.Music.DefaultVolumeDB == 0 {
		c.Music.DefaultVolumeDB = -18
	}
	if c.Pipeline.MaxHealAttempts <= 0 {
		c.Pipeline.MaxHealAttempts = 3
	}
	if c.Pipeline.TitleVariants <= 0 {
		c.Pipeline.TitleVariants = 5
	}
	if c.Redis.Concurrency <= 0 {
		c.Redis.Concurrency = 5
	}
}
