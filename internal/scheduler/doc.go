// Package scheduler arms playback actions on a clock and executes them
// against a player with bounded retries.
//
// One entry is armed per active action: one-time actions fire once at their
// date and retire; daily actions fire at their wall-clock time in the
// action's zone and then repeat every 24 hours. Executions re-read the action
// from the store, call the player, persist the outcome and publish it on the
// event bus. Timer state is never persisted; Initialize rebuilds it from the
// store after a restart and reports daily actions missed during downtime.
package scheduler
