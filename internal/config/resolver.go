package config

import "os"

// Prefixes checked before the runtime namespace, highest priority first.
var envPrefixes = []string{"VITE_", "VITE_PUBLIC_", "NEXT_PUBLIC_"}

// Resolver looks up a configuration value across the environment sources
// the frontend builds inject, in priority order:
//
//	VITE_<name>, VITE_PUBLIC_<name>, NEXT_PUBLIC_<name>,
//	the runtime namespace (runtime_env in the config file), <name>
//
// The first non-empty value wins.
type Resolver struct {
	runtime map[string]string
	getenv  func(string) string
}

func NewResolver(runtime map[string]string) *Resolver {
	return &Resolver{
		runtime: runtime,
		getenv:  os.Getenv,
	}
}

// Lookup returns the first non-empty value for name and reports whether one
// was found.
func (r *Resolver) Lookup(name string) (string, bool) {
	for _, prefix := range envPrefixes {
		if v := r.getenv(prefix + name); v != "" {
			return v, true
		}
	}
	if v := r.runtime[name]; v != "" {
		return v, true
	}
	if v := r.getenv(name); v != "" {
		return v, true
	}
	return "", false
}

// Get is Lookup without the presence flag.
func (r *Resolver) Get(name string) string {
	v, _ := r.Lookup(name)
	return v
}
