// Package update decides whether and how to reflash a device, and then
// does it.
//
// A Selector resolves the user's Intent and the probed device.State into
// a Plan before anything touches the device:
//
//	sel := update.NewSelector(cat, source, version.Short())
//	plan, err := sel.Select(ctx, update.Intent{Force: true}, state)
//
// An Orchestrator executes the plan as a linear state machine:
//
//	Idle → Acquiring → Validating → Disconnecting → Flashing → Done
//	Idle → ... → Flashing → AwaitingReboot → ApplyingRadioPatch → Settling → Done
//	Idle → ... → Disconnecting → ApplyingRadioPatch → Settling → Done
//
// Any step may end in Failed. The firmware write is never retried and is
// never interrupted by context cancellation; the radio patch is applied
// only after the post-flash settle delay has elapsed.
package update
