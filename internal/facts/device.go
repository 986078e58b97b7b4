// Package facts implements fact providers that describe the capturing
// device and its position.
package facts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"capture-go/internal/capture"
)

const (
	// ProviderName is the name facts from DeviceProvider are stored under.
	ProviderName = "Device"

	// Namespace scopes DeviceProvider preferences.
	Namespace = "device-provider"

	CollectDeviceInfoKey   = "collectDeviceInfo"
	CollectLocationInfoKey = "collectLocationInfo"

	uuidKey = "uuid"
)

// Fact names reported by DeviceProvider.
const (
	FactDeviceName         = "deviceName"
	FactDeviceModel        = "deviceModel"
	FactDevicePlatform     = "devicePlatform"
	FactUUID               = "uuid"
	FactAppVersion         = "appVersion"
	FactAppVersionCode     = "appVersionCode"
	FactOperatingSystem    = "operatingSystem"
	FactOSVersion          = "osVersion"
	FactDeviceManufacturer = "deviceManufacturer"
	FactRunningOnVM        = "runningOnVm"
	FactUsedMemory         = "usedMemory"
	FactFreeDiskSpace      = "freeDiskSpace"
	FactTotalDiskSpace     = "totalDiskSpace"
	FactBatteryLevel       = "batteryLevel"
	FactBatteryCharging    = "batteryCharging"
	FactDeviceLanguageCode = "deviceLanguageCode"
)

// AppInfo identifies the running application.
type AppInfo struct {
	Version     string
	VersionCode string
}

// DeviceProvider reports device, battery, language and location facts.
// Each group can be switched off through its preference.
type DeviceProvider struct {
	device DeviceSource
	geo    Geolocator
	prefs  *capture.Preferences
	app    AppInfo
	idgen  capture.IDGenerator

	mu sync.Mutex
}

var _ capture.FactProvider = (*DeviceProvider)(nil)

// NewDeviceProvider creates a DeviceProvider. geo may be nil, in which case
// no location fact is reported.
func NewDeviceProvider(device DeviceSource, geo Geolocator, store capture.PreferenceStore, app AppInfo, idgen capture.IDGenerator) *DeviceProvider {
	return &DeviceProvider{
		device: device,
		geo:    geo,
		prefs:  capture.NewPreferences(store, Namespace),
		app:    app,
		idgen:  idgen,
	}
}

func (p *DeviceProvider) Name() string {
	return ProviderName
}

func (p *DeviceProvider) DeviceInfoEnabled(ctx context.Context) (bool, error) {
	return p.prefs.GetBool(ctx, CollectDeviceInfoKey, true)
}

func (p *DeviceProvider) SetDeviceInfoEnabled(ctx context.Context, enabled bool) error {
	return p.prefs.SetBool(ctx, CollectDeviceInfoKey, enabled)
}

func (p *DeviceProvider) LocationEnabled(ctx context.Context) (bool, error) {
	return p.prefs.GetBool(ctx, CollectLocationInfoKey, true)
}

func (p *DeviceProvider) SetLocationEnabled(ctx context.Context, enabled bool) error {
	return p.prefs.SetBool(ctx, CollectLocationInfoKey, enabled)
}

// DeviceID returns the installation identifier, creating it on first use.
func (p *DeviceProvider) DeviceID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.prefs.GetString(ctx, uuidKey, "")
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = p.idgen.New()
	if err := p.prefs.SetString(ctx, uuidKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// Provide gathers the enabled fact groups concurrently.
func (p *DeviceProvider) Provide(ctx context.Context, _ *capture.Proof) ([]capture.Fact, error) {
	deviceEnabled, err := p.DeviceInfoEnabled(ctx)
	if err != nil {
		return nil, err
	}
	locationEnabled, err := p.LocationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	locationEnabled = locationEnabled && p.geo != nil

	var (
		info     DeviceInfo
		battery  BatteryInfo
		language string
		deviceID string
		position Position
	)

	g, gctx := errgroup.WithContext(ctx)
	if deviceEnabled {
		g.Go(func() error {
			var err error
			if info, err = p.device.Info(gctx); err != nil {
				return fmt.Errorf("reading device info: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if battery, err = p.device.Battery(gctx); err != nil {
				return fmt.Errorf("reading battery info: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if language, err = p.device.LanguageCode(gctx); err != nil {
				return fmt.Errorf("reading language code: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			deviceID, err = p.DeviceID(gctx)
			return err
		})
	}
	if locationEnabled {
		g.Go(func() error {
			var err error
			position, err = p.currentPosition(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	facts := []capture.Fact{}
	if deviceEnabled {
		facts = append(facts,
			fact(FactDeviceName, info.Name),
			fact(FactDeviceModel, info.Model),
			fact(FactDevicePlatform, info.Platform),
			fact(FactUUID, deviceID),
			fact(FactAppVersion, p.app.Version),
			fact(FactAppVersionCode, p.app.VersionCode),
			fact(FactOperatingSystem, info.OperatingSystem),
			fact(FactOSVersion, info.OSVersion),
			fact(FactDeviceManufacturer, info.Manufacturer),
			fact(FactRunningOnVM, strconv.FormatBool(info.IsVirtual)),
			fact(FactUsedMemory, strconv.FormatInt(info.MemUsed, 10)),
			fact(FactFreeDiskSpace, strconv.FormatInt(info.DiskFree, 10)),
			fact(FactTotalDiskSpace, strconv.FormatInt(info.DiskTotal, 10)),
			fact(FactBatteryLevel, strconv.FormatFloat(battery.Level, 'f', -1, 64)),
			fact(FactBatteryCharging, strconv.FormatBool(battery.Charging)),
			fact(FactDeviceLanguageCode, language),
		)
	}
	if locationEnabled {
		facts = append(facts, fact(capture.LocationFactName, FormatPosition(position)))
	}
	return facts, nil
}

func (p *DeviceProvider) currentPosition(ctx context.Context) (Position, error) {
	opts := DefaultPositionOptions
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pos, err := p.geo.CurrentPosition(ctx, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Position{}, fmt.Errorf("reading position: %w", capture.ErrTimeout)
		}
		return Position{}, fmt.Errorf("reading position: %w", err)
	}
	return pos, nil
}

// FormatPosition renders a position as "(lat, lon)".
func FormatPosition(pos Position) string {
	return "(" + strconv.FormatFloat(pos.Latitude, 'f', -1, 64) + ", " +
		strconv.FormatFloat(pos.Longitude, 'f', -1, 64) + ")"
}

func fact(name, value string) capture.Fact {
	return capture.Fact{Name: name, Value: value}
}
