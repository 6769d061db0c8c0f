package jog_arm

import (
	"fmt"
	"time"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"jog_arm/controllers"
	"jog_arm/dispatch"
	"jog_arm/jog"
	"jog_arm/jogtarget"
	"jog_arm/kinematics"
)

const (
	defaultFeedbackRateHz = 20.0
	jogGoalFrame          = "jog_goal"
)

// Config is the jog-frame service configuration.
type Config struct {
	// Base URL of the compute_fk / compute_ik HTTP bridge.
	KinematicsURL       string `json:"kinematics_url"`
	KinematicsTimeoutMs int    `json:"kinematics_timeout_ms,omitempty"`

	TickRateHz       float64 `json:"tick_rate_hz,omitempty"`
	FeedbackRateHz   float64 `json:"feedback_rate_hz,omitempty"`
	TimeFromStartSec float64 `json:"time_from_start_sec,omitempty"`

	UseAction    bool  `json:"use_action,omitempty"`
	Intermittent bool  `json:"intermittent,omitempty"`
	PublishTF    *bool `json:"publish_tf,omitempty"`

	// The first entry of each list is the default for jog commands that omit it.
	GroupNames        []string `json:"group_names,omitempty"`
	LinkNames         []string `json:"link_names,omitempty"`
	ExcludeJointNames []string `json:"exclude_joint_names,omitempty"`
	DefaultDamping    float64  `json:"default_damping,omitempty"`

	// Each controller name is the name of the arm component that executes it.
	ControllerList []map[string]interface{} `json:"controller_list"`

	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// Validate fills defaults and returns the arms named by controller_list as
// required dependencies.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.KinematicsURL == "" {
		return nil, nil, goutils.NewConfigValidationFieldRequiredError(path, "kinematics_url")
	}
	if _, err := kinematics.NewHTTPSolver(cfg.KinematicsURL, nil); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(cfg.ControllerList) == 0 {
		return nil, nil, goutils.NewConfigValidationFieldRequiredError(path, "controller_list")
	}
	if cfg.KinematicsTimeoutMs < 0 || cfg.TickRateHz < 0 || cfg.FeedbackRateHz < 0 || cfg.TimeFromStartSec < 0 {
		return nil, nil, fmt.Errorf("%s: rates, timeouts and durations must not be negative", path)
	}
	if cfg.DefaultDamping != 0 && (cfg.DefaultDamping < jogtarget.MinDamping || cfg.DefaultDamping > jogtarget.MaxDamping) {
		return nil, nil, fmt.Errorf("%s: default_damping must be between %v and %v, got %v",
			path, jogtarget.MinDamping, jogtarget.MaxDamping, cfg.DefaultDamping)
	}

	// type warnings are logged once, when the service is constructed
	registry, _, err := controllers.Check(cfg.ControllerList)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.applyDefaults()

	deps := make([]string, 0, registry.Len())
	for _, name := range registry.Names() {
		deps = append(deps, arm.Named(name).String())
	}
	return deps, nil, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.KinematicsTimeoutMs == 0 {
		cfg.KinematicsTimeoutMs = int(kinematics.DefaultTimeout / time.Millisecond)
	}
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = jog.DefaultRateHz
	}
	if cfg.FeedbackRateHz == 0 {
		cfg.FeedbackRateHz = defaultFeedbackRateHz
	}
	if cfg.TimeFromStartSec == 0 {
		cfg.TimeFromStartSec = dispatch.DefaultTimeFromStart.Seconds()
	}
	if cfg.DefaultDamping == 0 {
		cfg.DefaultDamping = jogtarget.DefaultDamping
	}
	if cfg.PublishTF == nil {
		publish := true
		cfg.PublishTF = &publish
	}
}

// dispatchMode resolves use_action and intermittent. Intermittent gating only
// has meaning for tracked goals, so it forces goal mode.
func (cfg *Config) dispatchMode(logger logging.Logger) dispatch.Mode {
	if cfg.Intermittent && !cfg.UseAction {
		logger.Warn("intermittent requires use_action, using goal dispatch")
		return dispatch.ModeGoal
	}
	if cfg.UseAction {
		return dispatch.ModeGoal
	}
	return dispatch.ModePublish
}

func (cfg *Config) kinematicsTimeout() time.Duration {
	return time.Duration(cfg.KinematicsTimeoutMs) * time.Millisecond
}

func (cfg *Config) timeFromStart() time.Duration {
	return time.Duration(cfg.TimeFromStartSec * float64(time.Second))
}

func (cfg *Config) defaultGroup() string {
	if len(cfg.GroupNames) == 0 {
		return ""
	}
	return cfg.GroupNames[0]
}

func (cfg *Config) defaultLink() string {
	if len(cfg.LinkNames) == 0 {
		return ""
	}
	return cfg.LinkNames[0]
}
