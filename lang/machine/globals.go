package machine

import "github.com/dolthub/swiss"

// GlobalEnv is the string-keyed global environment shared by every frame
// of a single Run. It is backed by a swiss-table map for fast, low
// allocation lookups on the GetGlobal/SetGlobal hot path.
type GlobalEnv struct {
	m *swiss.Map[string, Value]
}

// NewGlobalEnv returns a GlobalEnv seeded with the runtime library (print).
func NewGlobalEnv() *GlobalEnv {
	g := &GlobalEnv{m: swiss.NewMap[string, Value](8)}
	seedRuntimeLibrary(g)
	return g
}

// Get returns the value bound to name, or ErrGlobalNotFound if name has
// never been assigned.
func (g *GlobalEnv) Get(name string) (Value, error) {
	v, ok := g.m.Get(name)
	if !ok {
		return nil, errGlobalNotFound(name)
	}
	return v, nil
}

// Set binds name to v, creating the binding if it does not already exist.
func (g *GlobalEnv) Set(name string, v Value) {
	g.m.Put(name, v)
}
