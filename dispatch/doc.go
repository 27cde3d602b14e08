// Package dispatch is the runtime half of hotpatch: it decides, for every
// intercepted call, whether a dynamically installed wrapper, a generated
// override, or the original method body should run.
//
// A woven call site calls Engine.Dispatch with the namespace of the
// original type, the phase it is in (before, after, or none for a full
// replacement), the method key, the receiver and the call arguments. The
// engine answers with a Result: Handled(value) when an override produced the
// authoritative value, or NotHandled when the caller must continue with its
// own logic.
//
// Lookup order:
//
//  1. WrapperStore: wrappers installed at runtime, keyed by
//     (namespace, method, phase). After-phase wrappers are consumed by the
//     first dispatch that reads them.
//  2. RegistryCache: one immutable Registry per namespace, loaded lazily from
//     a Loader (normally the link-time Catalog filled by generated code).
//  3. OwnerCache: one singleton owner instance per override type, which must
//     opt into the Owner capability before anything is invoked on it.
//
// Absence at any step is not an error. Only failures to build an owner and
// failures while running override code escape Dispatch, as *DispatchError.
package dispatch
