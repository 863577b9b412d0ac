// Package loader provides the feature loading system.
//
// Each feature (merge, imports, integrity) implements the Feature interface
// and registers its own routes when loaded:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager holds the registry. Register adds a feature and LoadAll loads
// the enabled ones in registration order. A feature whose collaborator is not
// configured reports itself disabled instead of failing startup.
package loader
