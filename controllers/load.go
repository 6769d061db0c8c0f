package controllers

import (
	"os"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gopkg.in/yaml.v3"
)

type controllerFile struct {
	ControllerList []map[string]interface{} `yaml:"controller_list"`
	MoveGroup      *struct {
		ControllerList []map[string]interface{} `yaml:"controller_list"`
	} `yaml:"move_group"`
}

// LoadFile parses a YAML file holding controller_list either at the top level
// or under move_group.
func LoadFile(path string, logger logging.Logger) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading controller file")
	}
	return Load(data, logger)
}

// Load is LoadFile for YAML already in memory.
func Load(data []byte, logger logging.Logger) (*Registry, error) {
	var f controllerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing controller file")
	}

	list := f.ControllerList
	if list == nil && f.MoveGroup != nil {
		list = f.MoveGroup.ControllerList
	}
	if list == nil {
		return nil, &ConfigurationError{Index: -1, Reason: "controller_list is required"}
	}
	return Parse(list, logger)
}
