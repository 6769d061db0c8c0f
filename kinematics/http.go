package kinematics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// HTTPSolver talks to a kinematics bridge that exposes MoveIt's GetPositionFK
// and GetPositionIK messages as JSON at <base>/compute_fk and <base>/compute_ik.
type HTTPSolver struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPSolver returns a solver rooted at baseURL. A nil client uses
// http.DefaultClient; per-call deadlines come from the request context.
func NewHTTPSolver(baseURL string, client *http.Client) (*HTTPSolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid kinematics url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("kinematics url %q must use http or https", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSolver{base: u, client: client}, nil
}

// ComputeFK implements Solver.
func (s *HTTPSolver) ComputeFK(ctx context.Context, req FKRequest) (FKResponse, error) {
	body := fkRequestJSON{
		Header:      headerToJSON(req.Header),
		FKLinkNames: req.FKLinkNames,
		RobotState:  robotStateJSON{JointState: jointStateToJSON(req.RobotState)},
	}
	var out fkResponseJSON
	if err := s.post(ctx, "compute_fk", body, &out); err != nil {
		return FKResponse{}, err
	}
	resp := FKResponse{
		ErrorCode:   ErrorCode(out.ErrorCode.Val),
		FKLinkNames: out.FKLinkNames,
	}
	for _, p := range out.PoseStamped {
		resp.PoseStamped = append(resp.PoseStamped, p.toPoseStamped())
	}
	return resp, nil
}

// ComputeIK implements Solver.
func (s *HTTPSolver) ComputeIK(ctx context.Context, req IKRequest) (IKResponse, error) {
	body := ikRequestJSON{IKRequest: positionIKRequestJSON{
		GroupName:       req.GroupName,
		IKLinkName:      req.IKLinkName,
		RobotState:      robotStateJSON{JointState: jointStateToJSON(req.RobotState)},
		AvoidCollisions: req.AvoidCollisions,
		PoseStamped:     poseStampedToJSON(req.PoseStamped),
		Timeout:         req.Timeout.Seconds(),
	}}
	var out ikResponseJSON
	if err := s.post(ctx, "compute_ik", body, &out); err != nil {
		return IKResponse{}, err
	}
	return IKResponse{
		ErrorCode: ErrorCode(out.ErrorCode.Val),
		Solution:  out.Solution.JointState.toJointState(),
	}, nil
}

func (s *HTTPSolver) post(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encoding %s request", endpoint)
	}
	target := s.base.JoinPath(endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "calling %s", endpoint)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("%s: http %d: %s", endpoint, httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s response", endpoint)
	}
	return nil
}

type headerJSON struct {
	FrameID string    `json:"frame_id"`
	Stamp   time.Time `json:"stamp"`
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type quaternionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type poseJSON struct {
	Position    pointJSON      `json:"position"`
	Orientation quaternionJSON `json:"orientation"`
}

type poseStampedJSON struct {
	Header headerJSON `json:"header"`
	Pose   poseJSON   `json:"pose"`
}

type jointStateJSON struct {
	Name     []string  `json:"name"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity,omitempty"`
	Effort   []float64 `json:"effort,omitempty"`
}

type robotStateJSON struct {
	JointState jointStateJSON `json:"joint_state"`
}

type errorCodeJSON struct {
	Val int32 `json:"val"`
}

type fkRequestJSON struct {
	Header      headerJSON     `json:"header"`
	FKLinkNames []string       `json:"fk_link_names"`
	RobotState  robotStateJSON `json:"robot_state"`
}

type fkResponseJSON struct {
	PoseStamped []poseStampedJSON `json:"pose_stamped"`
	FKLinkNames []string          `json:"fk_link_names"`
	ErrorCode   errorCodeJSON     `json:"error_code"`
}

type positionIKRequestJSON struct {
	GroupName       string          `json:"group_name"`
	IKLinkName      string          `json:"ik_link_name"`
	RobotState      robotStateJSON  `json:"robot_state"`
	AvoidCollisions bool            `json:"avoid_collisions"`
	PoseStamped     poseStampedJSON `json:"pose_stamped"`
	Timeout         float64         `json:"timeout,omitempty"`
}

type ikRequestJSON struct {
	IKRequest positionIKRequestJSON `json:"ik_request"`
}

type ikResponseJSON struct {
	Solution  robotStateJSON `json:"solution"`
	ErrorCode errorCodeJSON  `json:"error_code"`
}

func headerToJSON(h Header) headerJSON {
	return headerJSON{FrameID: h.FrameID, Stamp: h.Stamp}
}

func poseStampedToJSON(p PoseStamped) poseStampedJSON {
	o := p.Pose.Orientation
	return poseStampedJSON{
		Header: headerToJSON(p.Header),
		Pose: poseJSON{
			Position:    pointJSON{X: p.Pose.Position.X, Y: p.Pose.Position.Y, Z: p.Pose.Position.Z},
			Orientation: quaternionJSON{X: o.Imag, Y: o.Jmag, Z: o.Kmag, W: o.Real},
		},
	}
}

func (p poseStampedJSON) toPoseStamped() PoseStamped {
	o := p.Pose.Orientation
	return PoseStamped{
		Header: Header{FrameID: p.Header.FrameID, Stamp: p.Header.Stamp},
		Pose: Pose{
			Position:    r3.Vector{X: p.Pose.Position.X, Y: p.Pose.Position.Y, Z: p.Pose.Position.Z},
			Orientation: quat.Number{Real: o.W, Imag: o.X, Jmag: o.Y, Kmag: o.Z},
		},
	}
}

func jointStateToJSON(js JointState) jointStateJSON {
	return jointStateJSON{
		Name:     js.Name,
		Position: js.Position,
		Velocity: js.Velocity,
		Effort:   js.Effort,
	}
}

func (js jointStateJSON) toJointState() JointState {
	return JointState{
		Name:     js.Name,
		Position: js.Position,
		Velocity: js.Velocity,
		Effort:   js.Effort,
	}
}
