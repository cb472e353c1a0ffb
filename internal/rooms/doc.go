// Package rooms creates, tracks and removes temporary voice channels.
//
// A member joining the lobby channel gets a room of their own. Rooms are
// tracked in a Registry backed by a repository so they survive restarts,
// and a room is deleted as soon as it is seen empty: on the voice state
// update of the last member leaving, by its monitor, or by a sweep.
package rooms
