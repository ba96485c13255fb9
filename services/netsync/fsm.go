package netsync

import (
	"github.com/looplab/fsm"
)

// Sync manager states.
const (
	StateIdle       = "Idle"
	StateHeaderSync = "HeaderSync"
	StateBlockSync  = "BlockSync"
	StateSynced     = "Synced"
)

// Sync manager events.
const (
	eventStartHeaderSync = "startHeaderSync"
	eventHeadersCaughtUp = "headersCaughtUp"
	eventBlocksCaughtUp  = "blocksCaughtUp"
	eventReset           = "reset"
)

// newSyncFSM builds the coordinator state machine:
//
//	Idle -> HeaderSync -> BlockSync -> Synced
//
// New header announcements can pull Synced or BlockSync back into
// HeaderSync, and losing all ready peers resets any state to Idle.
func newSyncFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{
				Name: eventStartHeaderSync,
				Src:  []string{StateIdle, StateBlockSync, StateSynced},
				Dst:  StateHeaderSync,
			},
			{
				Name: eventHeadersCaughtUp,
				Src:  []string{StateHeaderSync},
				Dst:  StateBlockSync,
			},
			{
				Name: eventBlocksCaughtUp,
				Src:  []string{StateBlockSync},
				Dst:  StateSynced,
			},
			{
				Name: eventReset,
				Src:  []string{StateHeaderSync, StateBlockSync, StateSynced},
				Dst:  StateIdle,
			},
		},
		fsm.Callbacks{},
	)
}
