package jog_arm

import (
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/spf13/cast"
	commonpb "go.viam.com/api/common/v1"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"

	"jog_arm/jogtarget"
	"jog_arm/kinematics"
)

// jogRequest is the DoCommand form of a jog command.
//
//	{"command": "jog", "frame_id": "base_link", "target_link": "tool0",
//	 "group_name": "manipulator", "avoid_collisions": true, "damping_factor": 0.5,
//	 "stamp": 1717228800.25,
//	 "pose": {"x": 0.3, "y": 0, "z": 0.2, "qw": 1, "qx": 0, "qy": 0, "qz": 0}}
//
// The pose orientation may instead be given as an orientation vector
// (o_x, o_y, o_z, theta in degrees). stamp is seconds since the epoch or an
// RFC 3339 string and defaults to now.
type jogRequest struct {
	FrameID         string                 `mapstructure:"frame_id"`
	GroupName       string                 `mapstructure:"group_name"`
	TargetLink      string                 `mapstructure:"target_link"`
	AvoidCollisions *bool                  `mapstructure:"avoid_collisions"`
	DampingFactor   float64                `mapstructure:"damping_factor"`
	Pose            map[string]interface{} `mapstructure:"pose"`
	Stamp           interface{}            `mapstructure:"stamp"`
}

func decodeJogCommand(cmd map[string]interface{}, cfg *Config, now time.Time) (jogtarget.Command, error) {
	var req jogRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err != nil {
		return jogtarget.Command{}, err
	}
	if err := dec.Decode(cmd); err != nil {
		return jogtarget.Command{}, fmt.Errorf("invalid jog command: %w", err)
	}
	if req.FrameID == "" {
		return jogtarget.Command{}, fmt.Errorf("jog command requires frame_id")
	}
	if req.Pose == nil {
		return jogtarget.Command{}, fmt.Errorf("jog command requires pose")
	}

	pose, err := decodePose(req.Pose)
	if err != nil {
		return jogtarget.Command{}, err
	}
	stamp, err := decodeStamp(req.Stamp, now)
	if err != nil {
		return jogtarget.Command{}, err
	}

	out := jogtarget.Command{
		FrameID:         req.FrameID,
		GroupName:       req.GroupName,
		TargetLink:      req.TargetLink,
		AvoidCollisions: true,
		DampingFactor:   req.DampingFactor,
		Pose:            pose,
		Stamp:           stamp,
	}
	if out.GroupName == "" {
		out.GroupName = cfg.defaultGroup()
	}
	if out.TargetLink == "" {
		out.TargetLink = cfg.defaultLink()
	}
	if req.AvoidCollisions != nil {
		out.AvoidCollisions = *req.AvoidCollisions
	}
	return out, nil
}

func floatField(m map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("pose.%s: %w", key, err)
	}
	return f, nil
}

func hasAny(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func decodePose(m map[string]interface{}) (kinematics.Pose, error) {
	var (
		fields = map[string]float64{}
		err    error
	)
	defaults := map[string]float64{
		"x": 0, "y": 0, "z": 0,
		"qw": 1, "qx": 0, "qy": 0, "qz": 0,
		"o_x": 0, "o_y": 0, "o_z": 1, "theta": 0,
	}
	for key, def := range defaults {
		if fields[key], err = floatField(m, key, def); err != nil {
			return kinematics.Pose{}, err
		}
	}

	pose := kinematics.Pose{
		Position:    r3.Vector{X: fields["x"], Y: fields["y"], Z: fields["z"]},
		Orientation: quat.Number{Real: fields["qw"], Imag: fields["qx"], Jmag: fields["qy"], Kmag: fields["qz"]},
	}
	if !hasAny(m, "qw", "qx", "qy", "qz") && hasAny(m, "o_x", "o_y", "o_z", "theta") {
		ov := spatialmath.NewPoseFromProtobuf(&commonpb.Pose{
			OX:    fields["o_x"],
			OY:    fields["o_y"],
			OZ:    fields["o_z"],
			Theta: fields["theta"],
		})
		pose.Orientation = ov.Orientation().Quaternion()
	}
	return pose, nil
}

// decodeStamp reads seconds since the epoch or an RFC 3339 string. Stamps at
// or before the epoch are unset sentinels and rejected.
func decodeStamp(v interface{}, now time.Time) (time.Time, error) {
	var t time.Time
	switch s := v.(type) {
	case nil:
		return now, nil
	case string:
		parsed, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid stamp %q: %w", s, err)
		}
		t = parsed
	default:
		sec, err := cast.ToFloat64E(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid stamp %v: %w", s, err)
		}
		whole, frac := math.Modf(sec)
		t = time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second)))).UTC()
	}
	if !t.After(time.Unix(0, 0)) {
		return time.Time{}, fmt.Errorf("invalid stamp %v: must be after the Unix epoch", v)
	}
	return t, nil
}

func decodeJointState(cmd map[string]interface{}) ([]string, []float64, error) {
	names, err := cast.ToStringSliceE(cmd["name"])
	if err != nil {
		return nil, nil, fmt.Errorf("joint_state name: %w", err)
	}
	raw, err := cast.ToSliceE(cmd["position"])
	if err != nil {
		return nil, nil, fmt.Errorf("joint_state position: %w", err)
	}
	positions := make([]float64, len(raw))
	for i, v := range raw {
		if positions[i], err = cast.ToFloat64E(v); err != nil {
			return nil, nil, fmt.Errorf("joint_state position[%d]: %w", i, err)
		}
	}
	return names, positions, nil
}

// poseToMap renders pose with both quaternion and orientation vector fields.
func poseToMap(pose kinematics.Pose) map[string]interface{} {
	q := spatialmath.Quaternion(pose.Orientation)
	pb := spatialmath.PoseToProtobuf(spatialmath.NewPose(r3.Vector{}, &q))
	return map[string]interface{}{
		"x":     pose.Position.X,
		"y":     pose.Position.Y,
		"z":     pose.Position.Z,
		"qw":    pose.Orientation.Real,
		"qx":    pose.Orientation.Imag,
		"qy":    pose.Orientation.Jmag,
		"qz":    pose.Orientation.Kmag,
		"o_x":   pb.OX,
		"o_y":   pb.OY,
		"o_z":   pb.OZ,
		"theta": pb.Theta,
	}
}
