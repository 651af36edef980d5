package orchestrator

import "time"

// Broadcaster is the orchestrator's view of the WebSocket fanout (§6):
// internal/wsserver's Hub implements it. Kept as an interface so the
// orchestrator never imports wsserver, matching the producer-only rule
// for everything except the orchestrator itself.
type Broadcaster interface {
	WorldConnected(world string)
	WorldDisconnected(world string, reason string)
	ServerData(world, text string, ts time.Time)
	PromptUpdate(world, prompt string)
	UnseenCleared(world string)
	UnseenUpdate(world string, count int, firstUnseenAt time.Time)
	ActivityUpdate(world string, lastReceive time.Time)
	PendingReleased(world string, count int)
}

// noopBroadcaster is the default Broadcaster when no WebSocket hub is
// attached (e.g. in tests, or a build with the viewer server disabled).
type noopBroadcaster struct{}

func (noopBroadcaster) WorldConnected(string)                    {}
func (noopBroadcaster) WorldDisconnected(string, string)          {}
func (noopBroadcaster) ServerData(string, string, time.Time)      {}
func (noopBroadcaster) PromptUpdate(string, string)               {}
func (noopBroadcaster) UnseenCleared(string)                      {}
func (noopBroadcaster) UnseenUpdate(string, int, time.Time)       {}
func (noopBroadcaster) ActivityUpdate(string, time.Time)          {}
func (noopBroadcaster) PendingReleased(string, int)               {}
