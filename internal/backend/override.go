// override.go: operator-set local mode overrides. The status API lets a
// proctor force a camera into exam mode without touching the backend;
// an override wins over whatever the backend reports until cleared.
package backend

import (
	"context"
	"sync"
)

// OverridableClient wraps the REST client with local mode overrides.
type OverridableClient struct {
	*Client

	mu        sync.RWMutex
	overrides map[string]CameraMode
}

// NewOverridableClient wraps a client.
func NewOverridableClient(client *Client) *OverridableClient {
	return &OverridableClient{
		Client:    client,
		overrides: make(map[string]CameraMode),
	}
}

// GetCameraMode returns the local override when set, otherwise the
// backend-reported mode.
func (o *OverridableClient) GetCameraMode(ctx context.Context, cameraID string) (CameraMode, error) {
	o.mu.RLock()
	mode, overridden := o.overrides[cameraID]
	o.mu.RUnlock()
	if overridden {
		return mode, nil
	}
	return o.Client.GetCameraMode(ctx, cameraID)
}

// SetModeOverride forces the camera into the given mode.
func (o *OverridableClient) SetModeOverride(cameraID string, mode CameraMode) {
	o.mu.Lock()
	o.overrides[cameraID] = mode
	o.mu.Unlock()
}

// ClearModeOverride returns the camera to backend-driven mode selection.
func (o *OverridableClient) ClearModeOverride(cameraID string) {
	o.mu.Lock()
	delete(o.overrides, cameraID)
	o.mu.Unlock()
}

// ModeOverrides returns a snapshot of the active overrides.
func (o *OverridableClient) ModeOverrides() map[string]CameraMode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snapshot := make(map[string]CameraMode, len(o.overrides))
	for id, mode := range o.overrides {
		snapshot[id] = mode
	}
	return snapshot
}
