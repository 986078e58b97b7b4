package facts

import (
	"context"
	"errors"
	"time"
)

// DeviceInfo describes the capturing device.
type DeviceInfo struct {
	Name            string
	Model           string
	Platform        string
	OperatingSystem string
	OSVersion       string
	Manufacturer    string
	IsVirtual       bool
	MemUsed         int64
	DiskFree        int64
	DiskTotal       int64
}

// BatteryInfo is the battery state at capture time. Level is in [0, 1],
// or -1 when the device has no battery.
type BatteryInfo struct {
	Level    float64
	Charging bool
}

// DeviceSource reads device properties from the platform.
type DeviceSource interface {
	Info(ctx context.Context) (DeviceInfo, error)
	Battery(ctx context.Context) (BatteryInfo, error)
	LanguageCode(ctx context.Context) (string, error)
}

// Position is a geographic coordinate.
type Position struct {
	Latitude  float64
	Longitude float64
}

// PositionOptions mirrors the usual getCurrentPosition options.
type PositionOptions struct {
	EnableHighAccuracy bool
	MaximumAge         time.Duration
	Timeout            time.Duration
}

// DefaultPositionOptions are used for every location fact.
var DefaultPositionOptions = PositionOptions{
	EnableHighAccuracy: true,
	MaximumAge:         10 * time.Minute,
	Timeout:            10 * time.Second,
}

// Geolocator reports the current position.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// ErrNoPosition is returned by a Geolocator that cannot determine a position.
var ErrNoPosition = errors.New("position unavailable")

// FixedGeolocator always reports the same position. It stands in for a
// positioning device on hosts that have none.
type FixedGeolocator struct {
	Position Position
}

var _ Geolocator = FixedGeolocator{}

func (g FixedGeolocator) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return g.Position, nil
}
