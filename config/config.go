// Package config holds the service configuration.  All fields have safe
// defaults so callers can start from Default() and override only what they
// need, either through a TOML file or through the environment the deployment
// resolved for the process (bucket name, credentials, port).
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// StorageBackend selects the object-store adapter.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// RenderStrategy selects the text-layer rendering backend.  The choice is
// made once per deployment; the request layer never sees it.
type RenderStrategy string

const (
	// RenderOpenType draws glyph outlines directly onto a transparent raster.
	// Requires the typeface to be discoverable by name (or an explicit file).
	RenderOpenType RenderStrategy = "opentype"
	// RenderVipsSVG synthesizes an SVG fragment with the typeface embedded
	// inline and rasterizes it with libvips.
	RenderVipsSVG RenderStrategy = "vips-svg"
)

// Config is the top-level configuration struct.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Layers   LayersConfig   `toml:"layers"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr       string `toml:"addr"`
	CORSOrigin string `toml:"cors_origin"` // default "*"
	MaxConns   int    `toml:"max_conns"`   // 0 = unlimited
}

// StorageConfig selects and configures the content store.
type StorageConfig struct {
	Backend       StorageBackend `toml:"backend"`
	MaxAssetBytes int64          `toml:"max_asset_bytes"` // cap on a fetched object; 0 = no limit
	Local         LocalConfig    `toml:"local"`
	S3            S3Config       `toml:"s3"`
}

// LocalConfig configures the local filesystem store.
type LocalConfig struct {
	RootDir string `toml:"root_dir"`
	// URLSecret keys the HMAC capability URLs.  Empty means an ephemeral
	// secret is generated at startup and links die on restart.
	URLSecret     string `toml:"url_secret"`
	PublicBaseURL string `toml:"public_base_url"` // e.g. http://localhost:8080
	Permissions   uint32 `toml:"permissions"`     // default 0644
}

// S3Config configures the S3 store client.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"` // optional: MinIO, localstack, etc.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// RendererConfig configures the text-layer renderer.
type RendererConfig struct {
	Strategy RenderStrategy `toml:"strategy"`
	// FontName is the logical typeface name looked up in the runtime's font
	// set.  A typeface that cannot be located by this name is a deployment
	// defect and fails the request; nothing is silently substituted.
	FontName string `toml:"font_name"`
	// FontFile, when set, bypasses the name lookup and reads the typeface
	// from an explicit path.
	FontFile string `toml:"font_file"`
	// Placeholder replaces empty layer text.  Empty uses the built-in default.
	Placeholder string `toml:"placeholder"`
}

// AssetsConfig names the fixed input objects and the signed-URL lifetime.
type AssetsConfig struct {
	BaseKey          string `toml:"base_key"`
	StampKey         string `toml:"stamp_key"`
	SignedURLTTLSecs int    `toml:"signed_url_ttl_secs"`
}

// LayerConfig describes one fixed text layer.
type LayerConfig struct {
	Text     string  `toml:"text"`
	Width    int     `toml:"width"`
	Height   int     `toml:"height"`
	FontSize float64 `toml:"font_size"`
	Color    string  `toml:"color"`
	Top      int     `toml:"top"`
	Left     int     `toml:"left"`
}

// LayersConfig carries the geometry and default text of the three text
// layers plus the stamp placement.  Name.Text is the default recipient,
// used when the caller supplies no message.
type LayersConfig struct {
	Expiry    LayerConfig `toml:"expiry"`
	Issuer    LayerConfig `toml:"issuer"`
	Name      LayerConfig `toml:"name"`
	StampTop  int         `toml:"stamp_top"`
	StampLeft int         `toml:"stamp_left"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
	// File enables a rotating log file; empty logs to stderr.
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

// Default returns a Config populated with production defaults.  The layer
// geometry matches the certificate template provisioned out-of-band.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:       ":8080",
			CORSOrigin: "*",
		},
		Storage: StorageConfig{
			Backend:       StorageLocal,
			MaxAssetBytes: 32 * 1024 * 1024,
			Local: LocalConfig{
				RootDir:       "data",
				PublicBaseURL: "http://localhost:8080",
			},
			S3: S3Config{
				Region: "ap-northeast-1",
			},
		},
		Renderer: RendererConfig{
			Strategy: RenderOpenType,
			FontName: "Noto Sans JP",
		},
		Assets: AssetsConfig{
			BaseKey:          "base_image/card.png",
			StampKey:         "base_image/20250502-1222-2.png",
			SignedURLTTLSecs: 300,
		},
		Layers: LayersConfig{
			Expiry: LayerConfig{
				Text:     "有効期限 2033年11月11日",
				Width:    700,
				Height:   80,
				FontSize: 24,
				Color:    "#333333",
				Top:      538,
				Left:     125,
			},
			Issuer: LayerConfig{
				Text:     "発行者 山田 太郎",
				Width:    400,
				Height:   80,
				FontSize: 24,
				Color:    "#333333",
				Top:      585,
				Left:     125,
			},
			Name: LayerConfig{
				Text:     "佐藤 雄一",
				Width:    400,
				Height:   100,
				FontSize: 40,
				Color:    "#000000",
				Top:      572,
				Left:     450,
			},
			StampTop:  580,
			StampLeft: 640,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 20,
		},
	}
}

// LoadFile reads a TOML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overlays the deployment-resolved environment values onto cfg.
// These are the values the execution environment owns: the core receives
// them already resolved, it does not compute them.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("SEALPRESS_CORS_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}
	if v := os.Getenv("SEALPRESS_STORAGE"); v != "" {
		cfg.Storage.Backend = StorageBackend(v)
	}
	if v := os.Getenv("SEALPRESS_DATA_DIR"); v != "" {
		cfg.Storage.Local.RootDir = v
	}
	if v := os.Getenv("SEALPRESS_URL_SECRET"); v != "" {
		cfg.Storage.Local.URLSecret = v
	}
	if v := os.Getenv("SEALPRESS_PUBLIC_BASE_URL"); v != "" {
		cfg.Storage.Local.PublicBaseURL = v
	}
	if v := os.Getenv("BUCKET_NAME"); v != "" {
		cfg.Storage.Backend = StorageS3
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("AWS_ENDPOINT_URL"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
	if v := os.Getenv("SEALPRESS_RENDERER"); v != "" {
		cfg.Renderer.Strategy = RenderStrategy(v)
	}
	if v := os.Getenv("SEALPRESS_FONT"); v != "" {
		cfg.Renderer.FontName = v
	}
	if v := os.Getenv("SEALPRESS_FONT_FILE"); v != "" {
		cfg.Renderer.FontFile = v
	}
	return cfg
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	switch c.Storage.Backend {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Renderer.Strategy {
	case RenderOpenType, RenderVipsSVG:
	default:
		return fmt.Errorf("config: unknown render strategy %q", c.Renderer.Strategy)
	}
	if c.Storage.Backend == StorageS3 {
		if c.Storage.S3.Bucket == "" {
			return errors.New("config: s3 bucket must be set")
		}
		if c.Storage.S3.Region == "" {
			return errors.New("config: s3 region must be set")
		}
	}
	if c.Renderer.FontName == "" && c.Renderer.FontFile == "" {
		return errors.New("config: a font name or font file must be set")
	}
	if c.Assets.BaseKey == "" || c.Assets.StampKey == "" {
		return errors.New("config: base and stamp asset keys must be set")
	}
	if c.Assets.SignedURLTTLSecs <= 0 {
		return errors.New("config: signed URL TTL must be positive")
	}
	for _, l := range []struct {
		name string
		lc   LayerConfig
	}{
		{"expiry", c.Layers.Expiry},
		{"issuer", c.Layers.Issuer},
		{"name", c.Layers.Name},
	} {
		if l.lc.Width <= 0 || l.lc.Height <= 0 {
			return fmt.Errorf("config: layer %s: width and height must be positive", l.name)
		}
		if l.lc.FontSize <= 0 {
			return fmt.Errorf("config: layer %s: font size must be positive", l.name)
		}
	}
	return nil
}
