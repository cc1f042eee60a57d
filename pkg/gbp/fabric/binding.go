package fabric

import (
	"fmt"
	"time"

	"github.com/stackforge/group-based-policy/pkg/util"
)

// agentDownTime is how long an agent may miss heartbeats before its
// bindings are refused.
const agentDownTime = 75 * time.Second

// Agent is a switching agent reporting from a hypervisor host.
type Agent struct {
	Host          string
	AgentType     string
	AdminStateUp  bool
	LastHeartbeat time.Time

	// NetworkTypes lists the segment network types the agent declared
	// support for. Empty means no declared restriction.
	NetworkTypes []string
	// PhysicalNetworks lists the physical networks the agent has
	// bridge mappings for. Empty means no declared restriction.
	PhysicalNetworks []string
}

// Alive reports whether the agent heartbeated recently enough to trust.
func (a *Agent) Alive(now time.Time) bool {
	return a.AdminStateUp && now.Sub(a.LastHeartbeat) < agentDownTime
}

// Supports reports whether the agent declared support for the segment's
// network type and physical network.
func (a *Agent) Supports(seg Segment) bool {
	if len(a.NetworkTypes) > 0 && !contains(a.NetworkTypes, seg.NetworkType) {
		return false
	}
	if seg.PhysicalNetwork != "" && len(a.PhysicalNetworks) > 0 &&
		!contains(a.PhysicalNetworks, seg.PhysicalNetwork) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Segment is one transport segment a network is realized on.
type Segment struct {
	ID              string
	NetworkType     string
	PhysicalNetwork string
	SegmentationID  int
}

// Binding is the outcome of placing a port on a host.
type Binding struct {
	Host      string
	SegmentID string
	VifType   string
}

// BindPort places a port on a host: the first live agent on the host
// that supports one of the network's segments wins. Dead agents are
// skipped with a warning rather than an error; an agent that missed
// heartbeats may only be restarting.
func BindPort(portID, host string, agents []Agent, segments []Segment, now time.Time) (*Binding, error) {
	for _, agent := range agents {
		if agent.Host != host {
			continue
		}
		if !agent.Alive(now) {
			util.WithResource("port", portID).Warnf(
				"skipping dead agent on host %s (last heartbeat %s)",
				agent.Host, agent.LastHeartbeat.Format(time.RFC3339))
			continue
		}
		for _, seg := range segments {
			if agent.Supports(seg) {
				return &Binding{Host: host, SegmentID: seg.ID, VifType: "ovs"}, nil
			}
		}
	}
	return nil, fmt.Errorf("binding port %s on host %s: %w", portID, host, util.ErrPreconditionFailed)
}
