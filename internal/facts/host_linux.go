//go:build linux

package facts

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const dmiDir = "/sys/devices/virtual/dmi/id"

func fillPlatformInfo(info *DeviceInfo, dataDir string) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.OSVersion = unix.ByteSliceToString(uts.Release[:])
	}

	info.Model = readTrimmed(filepath.Join(dmiDir, "product_name"))
	info.Manufacturer = readTrimmed(filepath.Join(dmiDir, "sys_vendor"))
	info.IsVirtual = isVirtualModel(info.Model) || isVirtualModel(info.Manufacturer)

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		unit := uint64(si.Unit)
		if unit == 0 {
			unit = 1
		}
		info.MemUsed = int64((uint64(si.Totalram) - uint64(si.Freeram)) * unit)
	}

	if dataDir == "" {
		dataDir = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dataDir, &st); err == nil {
		bsize := uint64(st.Bsize)
		info.DiskFree = int64(st.Bavail * bsize)
		info.DiskTotal = int64(st.Blocks * bsize)
	}
}

func readBattery() BatteryInfo {
	matches, _ := filepath.Glob("/sys/class/power_supply/BAT*")
	if len(matches) == 0 {
		return BatteryInfo{Level: -1}
	}

	b := BatteryInfo{Level: -1}
	if pct, err := strconv.Atoi(readTrimmed(filepath.Join(matches[0], "capacity"))); err == nil {
		b.Level = float64(pct) / 100
	}
	status := strings.ToLower(readTrimmed(filepath.Join(matches[0], "status")))
	b.Charging = status == "charging" || status == "full"
	return b
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
