package runtime

// captureUpvalue implements spec §4.6: walks co's open-upvalue list (sorted
// by decreasing stack address) and returns an existing open upvalue for the
// slot, or inserts a new one at the right position.
func (vm *VM) captureUpvalue(co *Coroutine, slot *Value) *ObjUpvalue {
	var prev *ObjUpvalue
	cur := co.OpenUpvalues
	for cur != nil && ptrGreater(cur.Location, slot) {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.Location == slot {
		return cur
	}
	created := &ObjUpvalue{Location: slot, NextOpen: cur}
	vm.registerObject(created)
	if prev == nil {
		co.OpenUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues implements spec §4.6: walks from the head of co's
// open-upvalue list, closing every upvalue whose slot is at or above `from`,
// copying the slot's current value into the upvalue's inline storage.
func (vm *VM) closeUpvalues(co *Coroutine, from *Value) {
	for co.OpenUpvalues != nil && !ptrLess(co.OpenUpvalues.Location, from) {
		uv := co.OpenUpvalues
		uv.Closed = *uv.Location
		uv.Location = nil
		co.OpenUpvalues = uv.NextOpen
		uv.NextOpen = nil
	}
}
