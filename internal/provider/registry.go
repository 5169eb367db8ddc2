package provider

// NewDefaultRegistry wires the three built-in provider kinds. engine is
// passed through to NewSDKFactory; pass nil if no SDK-backed sessions will
// be spawned by this process.
func NewDefaultRegistry(engine AgentStream) *Registry {
	r := NewRegistry()
	if engine != nil {
		r.Register(KindSDK, NewSDKFactory(engine))
	}
	r.Register(KindMCP, NewMCPFactory())
	r.Register(KindPTY, NewPTYFactory())
	return r
}
