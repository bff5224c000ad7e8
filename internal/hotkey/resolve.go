// Package hotkey turns global key events into recording commands.
//
// Resolve is the pure decision table; bindings and the listener translate
// raw keyboard input into the Events it consumes.
package hotkey

import "errors"

// ErrUnsupported is returned when the binary was built without global hotkeys.
var ErrUnsupported = errors.New("global hotkeys not supported in this build (build with -tags hotkeys)")

// Action names a bindable hotkey action.
type Action string

const (
	ActionToggleRecording    Action = "ToggleRecording"
	ActionPushToTalk         Action = "PushToTalk"
	ActionOpenSettings       Action = "OpenSettings"
	ActionOpenTargetSelector Action = "OpenTargetSelector"
	// ActionCancelRecording is reported for Escape; it is not user-bindable.
	ActionCancelRecording Action = "CancelRecording"
)

// Actions lists the user-bindable actions.
var Actions = []Action{ActionToggleRecording, ActionPushToTalk, ActionOpenSettings, ActionOpenTargetSelector}

// Mode is the recording mode the resolver runs under.
type Mode string

const (
	ModeToggle     Mode = "toggle"
	ModePushToTalk Mode = "push_to_talk"
)

// Event is one press or release of a bound action.
type Event struct {
	Action  Action
	Pressed bool
}

// Response is what the daemon should do about an Event.
type Response int

const (
	NoOp Response = iota
	StartRecording
	StopAndTranscribe
	CancelRecording
	ShowSettings
	ShowTargetSelector
)

func (r Response) String() string {
	switch r {
	case StartRecording:
		return "StartRecording"
	case StopAndTranscribe:
		return "StopAndTranscribe"
	case CancelRecording:
		return "CancelRecording"
	case ShowSettings:
		return "ShowSettings"
	case ShowTargetSelector:
		return "ShowTargetSelector"
	default:
		return "NoOp"
	}
}

// Resolve maps an event under the given mode and recording state to exactly
// one Response. Releases only matter for push-to-talk.
func Resolve(ev Event, mode Mode, isRecording bool) Response {
	if !ev.Pressed {
		if ev.Action == ActionPushToTalk && mode == ModePushToTalk && isRecording {
			return StopAndTranscribe
		}
		return NoOp
	}
	switch ev.Action {
	case ActionToggleRecording:
		if isRecording {
			return StopAndTranscribe
		}
		return StartRecording
	case ActionPushToTalk:
		if mode == ModePushToTalk && !isRecording {
			return StartRecording
		}
		return NoOp
	case ActionOpenSettings:
		return ShowSettings
	case ActionOpenTargetSelector:
		return ShowTargetSelector
	case ActionCancelRecording:
		if isRecording {
			return CancelRecording
		}
		return NoOp
	default:
		return NoOp
	}
}
