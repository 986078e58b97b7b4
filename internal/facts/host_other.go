//go:build unix && !linux

package facts

import "golang.org/x/sys/unix"

func fillPlatformInfo(info *DeviceInfo, dataDir string) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.OSVersion = unix.ByteSliceToString(uts.Release[:])
		info.Model = unix.ByteSliceToString(uts.Machine[:])
	}
	info.IsVirtual = isVirtualModel(info.Model)
}

func readBattery() BatteryInfo {
	return BatteryInfo{Level: -1}
}
