package loader

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeature struct {
	name    string
	enabled bool
	err     error
}

func (f stubFeature) Name() string    { return f.name }
func (f stubFeature) IsEnabled() bool { return f.enabled }
func (f stubFeature) Load(app fiber.Router) error {
	if f.err != nil {
		return f.err
	}
	app.Get("/"+f.name, func(c *fiber.Ctx) error { return c.SendString(f.name) })
	return nil
}

func TestManager_LoadAll(t *testing.T) {
	mgr := NewManager()
	mgr.Register(stubFeature{name: "merge", enabled: true})
	mgr.Register(stubFeature{name: "imports", enabled: false})
	mgr.Register(stubFeature{name: "integrity", enabled: true})

	app := fiber.New()
	loaded, err := mgr.LoadAll(app)
	require.NoError(t, err)
	assert.Equal(t, []string{"merge", "integrity"}, loaded)
	assert.Len(t, mgr.Features(), 3)

	resp, err := app.Test(httptest.NewRequest("GET", "/merge", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/imports", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestManager_LoadAllErrors(t *testing.T) {
	mgr := NewManager()
	mgr.Register(stubFeature{name: "merge", enabled: true, err: errors.New("boom")})
	_, err := mgr.LoadAll(fiber.New())
	assert.ErrorContains(t, err, "merge")

	mgr = NewManager()
	mgr.Register(stubFeature{name: "merge", enabled: true})
	mgr.Register(stubFeature{name: "merge", enabled: true})
	_, err = mgr.LoadAll(fiber.New())
	assert.ErrorContains(t, err, "twice")
}
