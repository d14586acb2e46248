package capi

// FabricsInstanceHandle is an opaque reference to one process's fabrics
// registry, per spec §6 createInstance. It does not own the Target/Initiator
// handles created after it; there is no MXL instance binding in this module
// (that dependency is out of scope), so this simply mints a fresh handle.
type FabricsInstanceHandle uint64

var instances = newRegistry()

type instance struct{}

// CreateInstance opens a new FabricsInstance. Every Target/Initiator created
// afterwards is independent of this handle; it exists so that a cgo caller
// has a single top-level handle to free and thereby signal "done with this
// process's fabrics usage", matching the C-style surface's top-level handle.
func CreateInstance() FabricsInstanceHandle {
	return FabricsInstanceHandle(instances.put(&instance{}))
}

// InstanceClose releases a FabricsInstanceHandle. It does not cascade to
// Targets/Initiators created under it — those must be shut down
// individually, the same way the teacher's Close() methods never reach
// into unrelated objects they don't own.
func InstanceClose(h FabricsInstanceHandle) Status {
	if _, ok := instances.get(uint64(h)); !ok {
		return StatusInvalidArg
	}
	instances.delete(uint64(h))
	return StatusOK
}

func lookupInstance(op string, h FabricsInstanceHandle) error {
	if _, ok := instances.get(uint64(h)); !ok {
		return invalidHandle(op)
	}
	return nil
}
