// Package conf defines the settings for the classwatch camera service and
// loads them from a viper-backed config file plus environment overrides.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// CameraSettings describes one physical camera handled by this node.
type CameraSettings struct {
	ID      string // camera identifier used by the backend, e.g. CAM001
	Name    string // human readable camera name
	BatchID string // class/batch this camera observes
	Device  int    // video device index, -1 to probe
	Display bool   // render the live view window
}

// BackendSettings configures the REST collaborator used for schedule,
// attendance and violation records.
type BackendSettings struct {
	BaseURL          string        // backend API base URL, e.g. http://localhost:8000/api
	Timeout          time.Duration // per request timeout
	ModeCacheTTL     time.Duration // camera mode cache TTL
	ScheduleCacheTTL time.Duration // timetable/camera-schedule cache TTL
	RosterReload     time.Duration // student embedding roster reload interval
}

// MatcherSettings configures the face match index.
type MatcherSettings struct {
	RemoteURL string        // similarity search service URL, empty disables remote lookup
	Namespace string        // remote index namespace
	Timeout   time.Duration // remote query timeout
	Threshold float64       // minimum cosine similarity for an accepted match
}

// EmbedderSettings configures the face embedding sidecar.
type EmbedderSettings struct {
	URL       string        // embedding service URL
	Timeout   time.Duration // per request timeout
	Dimension int           // expected embedding vector length
}

// DetectorSettings configures the gocv DNN object detector.
type DetectorSettings struct {
	ModelPath  string  // frozen inference graph path
	ConfigPath string  // graph config path
	Threshold  float32 // minimum raw detector confidence
}

// VisionSettings groups the oracle adapters.
type VisionSettings struct {
	FaceCascadePath string // haar cascade used for face localization
	Embedder        EmbedderSettings
	Detector        DetectorSettings
}

// PhoneFilterSettings holds the phone candidate validation thresholds.
type PhoneFilterSettings struct {
	MinAreaRatio       float64       // below this the candidate is noise
	MaxAreaRatio       float64       // above this the candidate is a laptop/paper
	MinAspect          float64       // phone plausible long/short side ratio window
	MaxAspect          float64
	MinRectangularity  float64       // contour vs min-area rect coverage
	MinEmissiveRatio   float64       // center/border brightness ratio
	StaticRejectAfter  time.Duration // static candidates older than this earn no motion points
	StaticMovementPx   float64       // movement below this counts as static
	HighConfidence     float32       // raw detector confidence bonus cutoff
	MinScore           int           // accumulated score needed to confirm
}

// TrackerSettings holds the identity track state machine tuning.
type TrackerSettings struct {
	Enabled           bool          // false selects the degraded direct-mark mode
	IoUThreshold      float64       // minimum overlap for track/face association
	ConsecutiveN      int           // same-identity matches needed to confirm
	MinVisible        time.Duration // minimum continuous visibility before confirm
	LivenessWindow    time.Duration // trailing window for the motion check
	LivenessMinPx     float64       // cumulative movement needed within the window
	StaleTimeout      time.Duration // eviction timeout with no fresh detections
	MaxTrackHistory   int           // retained center positions per track
}

// EngineSettings holds the decision engine tuning.
type EngineSettings struct {
	DetectionInterval time.Duration // min spacing between inference cycles
	MarkCooldown      time.Duration // per student cooldown between marks
	LateAfter         time.Duration // PRESENT to LATE boundary after class start
	ExamCheckInterval time.Duration // phone check spacing in exam mode
	ExamConsecutive   int           // consecutive confirmed detections before alert
	AlertCooldown     time.Duration // spacing between exam alerts
	SureThreshold     float64       // direct identity attribution cutoff
	MaybeThreshold    float64       // tentative identity attribution cutoff
	TestModeAlwaysOn  bool          // mark regardless of schedule, for demos
}

// NotificationSettings configures out-of-band alert delivery.
type NotificationSettings struct {
	Urls    []string      // shoutrrr URLs; empty disables alerts
	Timeout time.Duration // send timeout
}

// MQTTSettings configures the optional decision publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// OutputSettings configures local persistence of decisions.
type OutputSettings struct {
	SQLite struct {
		Enabled bool
		Path    string
	}
}

// HTTPSettings configures the status/control server.
type HTTPSettings struct {
	Enabled bool
	Address string // listen address, e.g. :8090
}

// Settings is the root configuration for the service.
type Settings struct {
	Debug bool

	Main struct {
		Name    string // node name reported in decisions and logs
		LogFile string // optional rotating log file, empty for stdout only
	}

	Backend      BackendSettings
	Matcher      MatcherSettings
	Vision       VisionSettings
	PhoneFilter  PhoneFilterSettings
	Tracker      TrackerSettings
	Engine       EngineSettings
	Notification NotificationSettings
	MQTT         MQTTSettings
	Output       OutputSettings
	HTTP         HTTPSettings

	Cameras []CameraSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Setting returns the shared Settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		settingsMutex.Lock()
		defer settingsMutex.Unlock()
		var err error
		settingsInstance, err = Load()
		if err != nil {
			panic(fmt.Sprintf("error loading settings: %v", err))
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Load reads the configuration from disk and returns the settings.
func Load() (*Settings, error) {
	setDefaultConfig()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// initViper sets up config file discovery and reads the file when present.
// A missing config file is not an error, defaults apply.
func initViper() error {
	viper.SetConfigName("classwatch")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("classwatch")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for the config
// file: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "classwatch"))
	}
	return paths, nil
}
