package runtime

import "unsafe"

// ptrLess/ptrGreater order two *Value stack-slot pointers. Valid because
// Coroutine.Stack is allocated once at MaxStack capacity and never grown or
// reallocated, so every *Value handed out while a slot is "open" stays a
// stable address for the coroutine's lifetime.
func ptrLess(a, b *Value) bool    { return uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) }
func ptrGreater(a, b *Value) bool { return uintptr(unsafe.Pointer(a)) > uintptr(unsafe.Pointer(b)) }
