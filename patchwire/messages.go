package patchwire

// Messages exchanged with the control service.

// InstallRequest installs a value patch on the target engine.
type InstallRequest struct {
	Patch Patch `cbor:"1,keyasint"`
}

// InstallResponse reports the installed patch's content hash and whether it
// was written to the journal.
type InstallResponse struct {
	Hash      [32]byte `cbor:"1,keyasint"`
	Persisted bool     `cbor:"2,keyasint"`
}

// UninstallRequest removes the wrapper at (Namespace, Method, Phase).
type UninstallRequest struct {
	Namespace string `cbor:"1,keyasint"`
	Method    string `cbor:"2,keyasint"`
	Phase     string `cbor:"3,keyasint"`
}

// UninstallResponse is empty; a missing wrapper is reported as an error.
type UninstallResponse struct{}

// ListRequest asks for every installed wrapper.
type ListRequest struct{}

// WrapperInfo describes one installed wrapper. Value is set for value
// wrappers only.
type WrapperInfo struct {
	Namespace string `cbor:"1,keyasint"`
	Method    string `cbor:"2,keyasint"`
	Phase     string `cbor:"3,keyasint"`
	Kind      string `cbor:"4,keyasint"` // "value" or "behavior"
	Value     []byte `cbor:"5,keyasint,omitempty"`
}

// ListResponse lists installed wrappers sorted by key.
type ListResponse struct {
	Wrappers []WrapperInfo `cbor:"1,keyasint"`
}

// StatsRequest asks for engine counters.
type StatsRequest struct{}

// CacheStats mirrors dispatch.CacheStats.
type CacheStats struct {
	Entries int   `cbor:"1,keyasint"`
	Hits    int64 `cbor:"2,keyasint"`
	Misses  int64 `cbor:"3,keyasint"`
	Loads   int64 `cbor:"4,keyasint"`
}

// StatsResponse mirrors dispatch.Stats plus the journal size.
type StatsResponse struct {
	Engine     string     `cbor:"1,keyasint"`
	Registries CacheStats `cbor:"2,keyasint"`
	Owners     CacheStats `cbor:"3,keyasint"`
	Wrappers   int        `cbor:"4,keyasint"`
	Journaled  int        `cbor:"5,keyasint"`
}
