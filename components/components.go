// Package components defines the data shapes shared between the flocking engine
// and host adapters.
package components

// Handle is an opaque token a host adapter stores alongside an agent so it can
// move the matching renderable object. The simulation never inspects it.
type Handle any

// Boid tags a host-side entity that mirrors a simulated agent.
type Boid struct {
	Slot uint32 // agent slot, for reverse lookup from the host side
	Gen  uint32
}
