//go:build !unix

package facts

func fillPlatformInfo(info *DeviceInfo, dataDir string) {}

func readBattery() BatteryInfo {
	return BatteryInfo{Level: -1}
}
