package audio

import (
	"fmt"
	"strings"
)

// DeviceInfo is the public view of an input device.
type DeviceInfo struct {
	Name       string `json:"name"`
	IsDefault  bool   `json:"isDefault"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// ListInputDevices returns all input devices, flagging the host default.
// Devices whose name cannot be resolved are skipped.
func ListInputDevices(h Host) ([]DeviceInfo, error) {
	defName := ""
	if def, err := h.DefaultInputDevice(); err == nil {
		defName = def.Name
	}
	devs, err := h.InputDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceEnumeration, err)
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		out = append(out, DeviceInfo{
			Name:       d.Name,
			IsDefault:  defName != "" && d.Name == defName,
			Channels:   d.Channels,
			SampleRate: d.SampleRate,
		})
	}
	return out, nil
}

// resolveDevice picks the device named exactly preferred, else the host default.
// fellBack reports whether a requested name was not found.
func resolveDevice(h Host, preferred string) (dev Device, fellBack bool, err error) {
	if preferred != "" {
		devs, err := h.InputDevices()
		if err != nil {
			return Device{}, false, fmt.Errorf("list devices: %w", err)
		}
		for _, d := range devs {
			if d.Name == preferred {
				return d, false, nil
			}
		}
		fellBack = true
	}
	def, err := h.DefaultInputDevice()
	if err != nil {
		return Device{}, fellBack, err
	}
	return def, fellBack, nil
}
