package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that decodes from TOML strings such as "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MediaServer locates the media server's record API.
type MediaServer struct {
	URL    string `toml:"url"`
	Secret string `toml:"secret"`
	App    string `toml:"app"`
}

// Recorder is the complete service configuration.
type Recorder struct {
	Port      string `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// APIEndpoint is the policy API queried on every publish.
	APIEndpoint   string `toml:"api_endpoint"`
	UploadReferer string `toml:"upload_referer"`
	// UploadOverrideEndpoint replaces every policy's upload URL when set.
	UploadOverrideEndpoint string `toml:"upload_override_endpoint"`

	StoragePath string `toml:"storage_path"`
	TimeZone    string `toml:"time_zone"`

	MediaServer MediaServer `toml:"media_server"`

	// PushHost relays every published stream to rtmp://PushHost/PushApp/<stream>
	// when set.
	PushHost string `toml:"push_host"`
	PushApp  string `toml:"push_app"`

	FetchTimeout         Duration `toml:"fetch_timeout"`
	UploadTimeout        Duration `toml:"upload_timeout"`
	MaxConcurrentUploads int      `toml:"max_concurrent_uploads"`

	// MaxFileAgeDays enables the retention sweeper when positive.
	MaxFileAgeDays int      `toml:"max_file_age_days"`
	SweepInterval  Duration `toml:"sweep_interval"`
}

// Defaults returns the configuration used when neither a file nor the
// environment sets a value.
func Defaults() Recorder {
	return Recorder{
		Port:          "8080",
		LogLevel:      "info",
		LogFormat:     "json",
		StoragePath:   "./content",
		TimeZone:      "Local",
		MediaServer:   MediaServer{App: "live"},
		PushApp:       "live",
		FetchTimeout:  Duration(10 * time.Second),
		UploadTimeout: Duration(10 * time.Minute),
		SweepInterval: Duration(time.Minute),
	}
}

// LoadRecorder builds the configuration from defaults, the optional TOML file
// named by CONFIG_FILE, and finally environment variables (including those
// loaded from .env).
func LoadRecorder() (Recorder, error) {
	_ = Load()

	cfg := Defaults()
	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// LoadFile decodes the TOML file at path over cfg. Keys absent from the file
// keep their current values.
func LoadFile(path string, cfg *Recorder) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any environment variable that is set.
func (r *Recorder) ApplyEnv() {
	r.Port = GetEnv("PORT", r.Port)
	r.LogLevel = GetEnv("LOG_LEVEL", r.LogLevel)
	r.LogFormat = GetEnv("LOG_FORMAT", r.LogFormat)

	r.APIEndpoint = GetEnv("API_ENDPOINT", r.APIEndpoint)
	r.UploadReferer = GetEnv("UPLOAD_REFERER", r.UploadReferer)
	r.UploadOverrideEndpoint = GetEnv("UPLOAD_OVERRIDE_ENDPOINT", r.UploadOverrideEndpoint)

	r.StoragePath = GetEnv("STORAGE_PATH", r.StoragePath)
	r.TimeZone = GetEnv("TIME_ZONE", r.TimeZone)

	r.MediaServer.URL = GetEnv("MEDIA_SERVER_URL", r.MediaServer.URL)
	r.MediaServer.Secret = GetEnv("MEDIA_SERVER_SECRET", r.MediaServer.Secret)
	r.MediaServer.App = GetEnv("MEDIA_SERVER_APP", r.MediaServer.App)

	r.PushHost = GetEnv("PUSH_HOST", r.PushHost)
	r.PushApp = GetEnv("PUSH_APP", r.PushApp)

	r.FetchTimeout = Duration(GetEnvDuration("FETCH_TIMEOUT", r.FetchTimeout.Duration()))
	r.UploadTimeout = Duration(GetEnvDuration("UPLOAD_TIMEOUT", r.UploadTimeout.Duration()))
	r.MaxConcurrentUploads = GetEnvInt("MAX_CONCURRENT_UPLOADS", r.MaxConcurrentUploads)

	r.MaxFileAgeDays = GetEnvInt("MAX_FILE_AGE_DAYS", r.MaxFileAgeDays)
	r.SweepInterval = Duration(GetEnvDuration("SWEEP_INTERVAL", r.SweepInterval.Duration()))
}

// Validate reports the first invalid setting.
func (r Recorder) Validate() error {
	if r.APIEndpoint == "" {
		return errors.New("API_ENDPOINT is required")
	}
	if r.StoragePath == "" {
		return errors.New("STORAGE_PATH is required")
	}
	if r.MaxConcurrentUploads < 0 {
		return fmt.Errorf("invalid MAX_CONCURRENT_UPLOADS: %d", r.MaxConcurrentUploads)
	}
	if r.MaxFileAgeDays < 0 {
		return fmt.Errorf("invalid MAX_FILE_AGE_DAYS: %d", r.MaxFileAgeDays)
	}
	if r.MaxFileAgeDays > 0 && r.SweepInterval <= 0 {
		return fmt.Errorf("invalid SWEEP_INTERVAL: %s", r.SweepInterval.Duration())
	}
	if r.PushHost != "" && r.MediaServer.URL == "" {
		return errors.New("PUSH_HOST requires MEDIA_SERVER_URL")
	}
	if _, err := r.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone. Segment filenames are rendered in this zone.
func (r Recorder) Location() (*time.Location, error) {
	if r.TimeZone == "" || r.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", r.TimeZone, err)
	}
	return loc, nil
}
