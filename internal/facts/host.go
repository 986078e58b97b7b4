package facts

import (
	"context"
	"os"
	"runtime"
	"strings"
)

// HostDevice reads device facts from the machine the process runs on.
type HostDevice struct {
	name    string
	dataDir string
}

var _ DeviceSource = (*HostDevice)(nil)

// NewHostDevice creates a HostDevice. name overrides the host name when
// set; disk statistics are taken for the filesystem holding dataDir.
func NewHostDevice(name, dataDir string) *HostDevice {
	return &HostDevice{name: name, dataDir: dataDir}
}

func (h *HostDevice) Info(_ context.Context) (DeviceInfo, error) {
	name := h.name
	if name == "" {
		if hn, err := os.Hostname(); err == nil {
			name = hn
		}
	}

	info := DeviceInfo{
		Name:            name,
		Platform:        runtime.GOOS,
		OperatingSystem: runtime.GOOS,
	}
	fillPlatformInfo(&info, h.dataDir)
	return info, nil
}

func (h *HostDevice) Battery(_ context.Context) (BatteryInfo, error) {
	return readBattery(), nil
}

// LanguageCode derives the two-letter language from the locale environment.
func (h *HostDevice) LanguageCode(_ context.Context) (string, error) {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if code := languageFromLocale(os.Getenv(key)); code != "" {
			return code, nil
		}
	}
	return "en", nil
}

// languageFromLocale turns "pt_BR.UTF-8" into "pt".
func languageFromLocale(locale string) string {
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	lang, _, _ := strings.Cut(locale, ".")
	lang, _, _ = strings.Cut(lang, "_")
	lang, _, _ = strings.Cut(lang, "-")
	return strings.ToLower(lang)
}

// isVirtualModel reports whether a DMI product name belongs to a hypervisor.
func isVirtualModel(model string) bool {
	m := strings.ToLower(model)
	for _, vm := range []string{"virtual", "kvm", "qemu", "vmware", "virtualbox", "bochs", "hvm domu"} {
		if strings.Contains(m, vm) {
			return true
		}
	}
	return false
}
