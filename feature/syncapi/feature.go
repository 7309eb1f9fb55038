package syncapi

import (
	"github.com/gofiber/fiber/v2"
)

// Feature wires the sync API into the feature loader.
type Feature struct {
	service *Service
}

// NewFeature creates the syncapi feature.
func NewFeature(service *Service) *Feature {
	return &Feature{service: service}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "syncapi"
}

// IsEnabled reports whether the feature should load. The sync API is the
// whole point of the server, so it is always on.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the routes.
func (f *Feature) Load(app fiber.Router) error {
	handler := NewHandler(f.service)
	handler.RegisterRoutes(app)
	return nil
}
