package jog_arm

import (
	"sync"
	"time"

	"jog_arm/kinematics"
)

// stampedFrame is a named pose relative to a parent frame.
type stampedFrame struct {
	Name   string
	Parent string
	Pose   kinematics.Pose
	Stamp  time.Time
}

// frameCache keeps the latest broadcast of each frame so clients can read it
// back through DoCommand.
type frameCache struct {
	mu     sync.RWMutex
	frames map[string]stampedFrame
}

func newFrameCache() *frameCache {
	return &frameCache{frames: make(map[string]stampedFrame)}
}

// Broadcast records pose as frame name expressed in parent.
func (c *frameCache) Broadcast(name, parent string, pose kinematics.Pose, stamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames[name] = stampedFrame{Name: name, Parent: parent, Pose: pose, Stamp: stamp}
}

func (c *frameCache) Latest(name string) (stampedFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.frames[name]
	return f, ok
}
