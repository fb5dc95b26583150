// Package group commands rooms, floors or the whole site at once.
//
// A group command clamps the angle once and sends it to every addressed
// device in the selection concurrently, joining on all of them before it
// returns. Devices that fail are logged and left out of the result; callers
// compare the result length with the selection to detect partial failure.
// An empty selection is not an error.
package group
