// Package fsholder registers FilesystemFactory implementations per scheme
// and tracks device presence, keeping the registry mutex and the
// presence-callback mutex separate so a callback firing from inside a
// device lister's own goroutine can never deadlock against a caller who
// is, at the same moment, registering a new factory.
package fsholder

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/silverreel/medialib/internal/mlerrors"
	"github.com/silverreel/medialib/internal/vfs"
)

// PresenceCallback is notified whenever a device this holder knows about
// becomes present or absent.
type PresenceCallback func(device vfs.Device, present bool)

// Holder is the registry of FilesystemFactory instances and the device
// presence state derived from their DeviceListers.
type Holder struct {
	log zerolog.Logger

	mu              sync.RWMutex
	factories       map[string]vfs.FilesystemFactory
	networkEnabled  bool
	presentDevices  map[string]bool

	callbackMu sync.Mutex
	callbacks  []PresenceCallback
}

func New(log zerolog.Logger) *Holder {
	return &Holder{
		log:            log,
		factories:      make(map[string]vfs.FilesystemFactory),
		presentDevices: make(map[string]bool),
	}
}

// AddFsFactory registers factory for its scheme. Calling it twice for the
// same scheme replaces the previous registration.
func (h *Holder) AddFsFactory(factory vfs.FilesystemFactory) {
	h.mu.Lock()
	h.factories[factory.Scheme()] = factory
	h.mu.Unlock()
}

// SetNetworkEnabled toggles whether network-only factories are consulted
// by FsFactoryForMrl.
func (h *Holder) SetNetworkEnabled(enabled bool) {
	h.mu.Lock()
	h.networkEnabled = enabled
	h.mu.Unlock()
}

// NetworkEnabled reports the current network-discovery toggle.
func (h *Holder) NetworkEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.networkEnabled
}

// FsFactoryForMrl resolves the registered factory for m's scheme,
// returning ErrNoFilesystemFactory if none is registered, and
// ErrDeviceNotPresent if the scheme is network-only and network discovery
// is currently disabled.
func (h *Holder) FsFactoryForMrl(m vfs.Mrl) (vfs.FilesystemFactory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	factory, ok := h.factories[m.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", mlerrors.ErrNoFilesystemFactory, m.Scheme)
	}
	if factory.NetworkOnly() && !h.networkEnabled {
		return nil, fmt.Errorf("%w: network discovery disabled", mlerrors.ErrDeviceNotPresent)
	}
	return factory, nil
}

// OnPresenceChange registers cb to be invoked, from the device lister's own
// goroutine, whenever a known device's presence changes.
func (h *Holder) OnPresenceChange(cb PresenceCallback) {
	h.callbackMu.Lock()
	h.callbacks = append(h.callbacks, cb)
	h.callbackMu.Unlock()
}

// StartFsFactoriesAndRefresh starts every registered factory's
// DeviceLister, if it has one, wiring its mounted/unmounted events to
// OnDeviceMounted/OnDeviceUnmounted.
func (h *Holder) StartFsFactoriesAndRefresh() error {
	h.mu.RLock()
	factories := make([]vfs.FilesystemFactory, 0, len(h.factories))
	for _, f := range h.factories {
		factories = append(factories, f)
	}
	h.mu.RUnlock()

	for _, f := range factories {
		lister, ok := f.DeviceLister()
		if !ok {
			continue
		}
		if err := lister.Start(h.onDeviceMounted, h.onDeviceUnmounted); err != nil {
			return fmt.Errorf("start device lister for %s: %w", f.Scheme(), err)
		}
	}
	return nil
}

func (h *Holder) onDeviceMounted(d vfs.Device) {
	h.mu.Lock()
	h.presentDevices[d.UUID()] = true
	h.mu.Unlock()
	h.log.Info().Str("device", d.UUID()).Msg("device mounted")
	h.notify(d, true)
}

func (h *Holder) onDeviceUnmounted(d vfs.Device) {
	h.mu.Lock()
	delete(h.presentDevices, d.UUID())
	h.mu.Unlock()
	h.log.Info().Str("device", d.UUID()).Msg("device unmounted")
	h.notify(d, false)
}

func (h *Holder) notify(d vfs.Device, present bool) {
	h.callbackMu.Lock()
	cbs := make([]PresenceCallback, len(h.callbacks))
	copy(cbs, h.callbacks)
	h.callbackMu.Unlock()

	for _, cb := range cbs {
		cb(d, present)
	}
}

// IsPresent reports whether the device with the given uuid is currently
// marked present.
func (h *Holder) IsPresent(uuid string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presentDevices[uuid]
}
