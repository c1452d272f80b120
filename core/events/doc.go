// Package events defines the typed conversation event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current turn.
//   - Interrupted: the stream failed after a partial response; the snapshot
//     carried by the last Updated event stays as the visible result.
//
// user_input events
//
//   - UserPromptSubmitted (user_input.prompt_submitted): user message appended
//     to the conversation.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): placeholder
//     message created for a new epoch.
//   - AssistantResponseUpdated (assistant_response.updated): accumulated text
//     and sources after a fragment was merged.
//   - AssistantResponseFinal (assistant_response.final): response is complete
//     and frozen.
//   - AssistantResponseInterrupted (assistant_response.interrupted): the stream
//     failed; carries the error.
//
// assistant_playback events
//
//   - AssistantPlaybackStateChanged (assistant_playback.state_changed): a
//     message moved between idle, loading and playing.
//   - AssistantPlaybackFailed (assistant_playback.failed): loading speech for a
//     message failed.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): current turn started.
//   - TurnCompleted (turn_state.completed): current turn completed
//     successfully.
//   - TurnFailed (turn_state.failed): current turn failed.
//   - TurnCancelled (turn_state.cancelled): current turn was abandoned.
package events
