// Package controllers parses the static list of joint-group controllers that
// receive jog trajectories.
package controllers

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"go.viam.com/rdk/logging"
)

// FollowJointTrajectory is the only supported controller type.
const FollowJointTrajectory = "FollowJointTrajectory"

// ControllerInfo describes one joint-group controller. Joint order defines
// trajectory column order.
type ControllerInfo struct {
	Name     string   `mapstructure:"name"`
	Joints   []string `mapstructure:"joints"`
	ActionNS string   `mapstructure:"action_ns"`
}

// ActionName is the goal endpoint for this controller.
func (c ControllerInfo) ActionName() string {
	return c.Name + "/" + c.ActionNS
}

// CommandTopic is the fire-and-forget endpoint for this controller.
func (c ControllerInfo) CommandTopic() string {
	return c.Name + "/command"
}

// ConfigurationError rejects a controller list. It is fatal at startup.
type ConfigurationError struct {
	Index      int
	Controller string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Controller == "" {
		return fmt.Sprintf("controller_list[%d]: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("controller_list[%d] (%s): %s", e.Index, e.Controller, e.Reason)
}

// Registry is an immutable, ordered set of controllers.
type Registry struct {
	controllers []ControllerInfo
	byName      map[string]int
}

// Parse validates every descriptor and builds a Registry, logging each
// warning Check reports. Any bad descriptor fails the whole list.
func Parse(descriptors []map[string]interface{}, logger logging.Logger) (*Registry, error) {
	r, warnings, err := Check(descriptors)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	return r, nil
}

// Check is Parse without logging. Non-fatal problems come back as warnings.
func Check(descriptors []map[string]interface{}) (*Registry, []string, error) {
	var warnings []string
	r := &Registry{byName: make(map[string]int, len(descriptors))}
	for i, d := range descriptors {
		info, warning, err := parseDescriptor(i, d)
		if err != nil {
			return nil, nil, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if _, dup := r.byName[info.Name]; dup {
			return nil, nil, &ConfigurationError{Index: i, Controller: info.Name, Reason: "duplicate controller name"}
		}
		r.byName[info.Name] = len(r.controllers)
		r.controllers = append(r.controllers, info)
	}
	return r, warnings, nil
}

func parseDescriptor(i int, d map[string]interface{}) (ControllerInfo, string, error) {
	rawName, ok := d["name"]
	if !ok {
		return ControllerInfo{}, "", &ConfigurationError{Index: i, Reason: "name is required"}
	}
	name, err := cast.ToStringE(rawName)
	if err != nil || name == "" {
		return ControllerInfo{}, "", &ConfigurationError{Index: i, Reason: "name must be a non-empty string"}
	}

	rawJoints, ok := d["joints"]
	if !ok {
		return ControllerInfo{}, "", &ConfigurationError{Index: i, Controller: name, Reason: "joints is required"}
	}
	if k := reflect.ValueOf(rawJoints).Kind(); k != reflect.Slice && k != reflect.Array {
		return ControllerInfo{}, "", &ConfigurationError{Index: i, Controller: name, Reason: "joints must be a list"}
	}

	var warning string
	if rawType, ok := d["type"]; !ok {
		warning = fmt.Sprintf("controller %q has no type, assuming %s", name, FollowJointTrajectory)
	} else if typ := cast.ToString(rawType); typ != FollowJointTrajectory {
		return ControllerInfo{}, "", &ConfigurationError{
			Index:      i,
			Controller: name,
			Reason:     fmt.Sprintf("unsupported type %q", typ),
		}
	}

	var info ControllerInfo
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return ControllerInfo{}, "", err
	}
	if err := dec.Decode(map[string]interface{}{
		"joints":    rawJoints,
		"action_ns": d["action_ns"],
	}); err != nil {
		return ControllerInfo{}, "", &ConfigurationError{Index: i, Controller: name, Reason: err.Error()}
	}
	info.Name = name
	if info.Joints == nil {
		info.Joints = []string{}
	}
	return info, warning, nil
}

// Controllers returns the controllers in descriptor order.
func (r *Registry) Controllers() []ControllerInfo {
	out := make([]ControllerInfo, len(r.controllers))
	copy(out, r.controllers)
	return out
}

// Lookup returns the controller called name.
func (r *Registry) Lookup(name string) (ControllerInfo, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ControllerInfo{}, false
	}
	return r.controllers[i], true
}

// Names returns controller names in descriptor order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.controllers))
	for i, c := range r.controllers {
		names[i] = c.Name
	}
	return names
}

func (r *Registry) Len() int {
	return len(r.controllers)
}
