package facts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"capture-go/internal/capture"
	"capture-go/internal/facts"
	"capture-go/internal/testutil"
)

type stubDevice struct {
	info    facts.DeviceInfo
	battery facts.BatteryInfo
	lang    string
	err     error
}

func (d stubDevice) Info(context.Context) (facts.DeviceInfo, error) { return d.info, d.err }

func (d stubDevice) Battery(context.Context) (facts.BatteryInfo, error) { return d.battery, nil }

func (d stubDevice) LanguageCode(context.Context) (string, error) { return d.lang, nil }

type slowGeolocator struct{}

func (slowGeolocator) CurrentPosition(ctx context.Context, _ facts.PositionOptions) (facts.Position, error) {
	<-ctx.Done()
	return facts.Position{}, ctx.Err()
}

func newDevice() stubDevice {
	return stubDevice{
		info: facts.DeviceInfo{
			Name:            "field-unit-7",
			Model:           "Pixel 8",
			Platform:        "android",
			OperatingSystem: "android",
			OSVersion:       "14",
			Manufacturer:    "Google",
			MemUsed:         1024,
			DiskFree:        2048,
			DiskTotal:       4096,
		},
		battery: facts.BatteryInfo{Level: 0.5, Charging: true},
		lang:    "en",
	}
}

func factMap(fs []capture.Fact) map[string]string {
	m := make(map[string]string, len(fs))
	for _, f := range fs {
		m[f.Name] = f.Value
	}
	return m
}

func TestDeviceProvider_AllFacts(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	geo := facts.FixedGeolocator{Position: facts.Position{Latitude: 25.033, Longitude: 121.5654}}
	p := facts.NewDeviceProvider(newDevice(), geo, db, facts.AppInfo{Version: "0.15.0", VersionCode: "150"}, testutil.NewStubIDGenerator())

	if p.Name() != facts.ProviderName {
		t.Errorf("Name() = %q, want %q", p.Name(), facts.ProviderName)
	}

	got, err := p.Provide(ctx, &capture.Proof{Hash: "abc"})
	if err != nil {
		t.Fatalf("Provide() error = %v", err)
	}
	if len(got) != 17 {
		t.Fatalf("Provide() returned %d facts, want 17", len(got))
	}

	m := factMap(got)
	want := map[string]string{
		facts.FactDeviceName:         "field-unit-7",
		facts.FactDeviceModel:        "Pixel 8",
		facts.FactUUID:               "id-1",
		facts.FactAppVersion:         "0.15.0",
		facts.FactAppVersionCode:     "150",
		facts.FactRunningOnVM:        "false",
		facts.FactUsedMemory:         "1024",
		facts.FactBatteryLevel:       "0.5",
		facts.FactBatteryCharging:    "true",
		facts.FactDeviceLanguageCode: "en",
		capture.LocationFactName:     "(25.033, 121.5654)",
	}
	for name, value := range want {
		if m[name] != value {
			t.Errorf("fact %s = %q, want %q", name, m[name], value)
		}
	}
}

func TestDeviceProvider_StableDeviceID(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	p := facts.NewDeviceProvider(newDevice(), nil, db, facts.AppInfo{}, testutil.NewStubIDGenerator())

	first, err := p.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	second, err := p.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if first != second {
		t.Errorf("DeviceID() changed: %q then %q", first, second)
	}

	// A new provider over the same store sees the persisted value.
	other := facts.NewDeviceProvider(newDevice(), nil, db, facts.AppInfo{}, testutil.NewStubIDGenerator())
	third, err := other.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if third != first {
		t.Errorf("DeviceID() = %q on new provider, want %q", third, first)
	}
}

func TestDeviceProvider_Preferences(t *testing.T) {
	ctx := context.Background()
	geo := facts.FixedGeolocator{Position: facts.Position{Latitude: 1, Longitude: 2}}

	tests := []struct {
		name      string
		device    bool
		location  bool
		wantCount int
	}{
		{"both enabled", true, true, 17},
		{"device only", true, false, 16},
		{"location only", false, true, 1},
		{"both disabled", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDatabase(t)
			p := facts.NewDeviceProvider(newDevice(), geo, db, facts.AppInfo{}, testutil.NewStubIDGenerator())
			if err := p.SetDeviceInfoEnabled(ctx, tt.device); err != nil {
				t.Fatalf("SetDeviceInfoEnabled() error = %v", err)
			}
			if err := p.SetLocationEnabled(ctx, tt.location); err != nil {
				t.Fatalf("SetLocationEnabled() error = %v", err)
			}

			got, err := p.Provide(ctx, &capture.Proof{Hash: "abc"})
			if err != nil {
				t.Fatalf("Provide() error = %v", err)
			}
			if got == nil {
				t.Fatal("Provide() returned nil slice")
			}
			if len(got) != tt.wantCount {
				t.Errorf("Provide() returned %d facts, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestDeviceProvider_DefaultsEnabled(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	p := facts.NewDeviceProvider(newDevice(), nil, db, facts.AppInfo{}, testutil.NewStubIDGenerator())

	dev, err := p.DeviceInfoEnabled(ctx)
	if err != nil || !dev {
		t.Errorf("DeviceInfoEnabled() = %v, %v; want true, nil", dev, err)
	}
	loc, err := p.LocationEnabled(ctx)
	if err != nil || !loc {
		t.Errorf("LocationEnabled() = %v, %v; want true, nil", loc, err)
	}
}

func TestDeviceProvider_NoGeolocator(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	p := facts.NewDeviceProvider(newDevice(), nil, db, facts.AppInfo{}, testutil.NewStubIDGenerator())

	got, err := p.Provide(context.Background(), &capture.Proof{Hash: "abc"})
	if err != nil {
		t.Fatalf("Provide() error = %v", err)
	}
	if _, ok := factMap(got)[capture.LocationFactName]; ok {
		t.Error("location fact reported without a geolocator")
	}
}

func TestDeviceProvider_DeviceError(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	dev := newDevice()
	dev.err = errors.New("sensor offline")
	p := facts.NewDeviceProvider(dev, nil, db, facts.AppInfo{}, testutil.NewStubIDGenerator())

	if _, err := p.Provide(context.Background(), &capture.Proof{Hash: "abc"}); err == nil {
		t.Fatal("Provide() expected error when device info fails")
	}
}

func TestDeviceProvider_LocationTimeout(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	p := facts.NewDeviceProvider(newDevice(), slowGeolocator{}, db, facts.AppInfo{}, testutil.NewStubIDGenerator())
	if err := p.SetDeviceInfoEnabled(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Provide(ctx, &capture.Proof{Hash: "abc"})
	if !errors.Is(err, capture.ErrTimeout) {
		t.Fatalf("Provide() error = %v, want ErrTimeout", err)
	}
}

func TestFormatPosition(t *testing.T) {
	tests := []struct {
		pos  facts.Position
		want string
	}{
		{facts.Position{Latitude: 25.033, Longitude: 121.5654}, "(25.033, 121.5654)"},
		{facts.Position{Latitude: -33.8688, Longitude: 151.2093}, "(-33.8688, 151.2093)"},
		{facts.Position{}, "(0, 0)"},
	}
	for _, tt := range tests {
		if got := facts.FormatPosition(tt.pos); got != tt.want {
			t.Errorf("FormatPosition(%v) = %q, want %q", tt.pos, got, tt.want)
		}
	}
}
