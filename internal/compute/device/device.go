package device

import (
	"fmt"
	"strings"
)

// Type describes the class of a compute device.
type Type string

const (
	TypeGPU         Type = "GPU"
	TypeCPU         Type = "CPU"
	TypeAccelerator Type = "Accelerator"
	TypeDefault     Type = "Default"
	TypeAll         Type = "All"
	TypeUnknown     Type = "Unknown"
)

// ParseType maps user input to a device class.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gpu":
		return TypeGPU, nil
	case "cpu":
		return TypeCPU, nil
	case "accelerator", "acc":
		return TypeAccelerator, nil
	case "default", "":
		return TypeDefault, nil
	case "all":
		return TypeAll, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown device type %q", name)
	}
}

// Matches reports whether a device of type t satisfies a request for class.
func (t Type) Matches(class Type) bool {
	switch class {
	case TypeAll:
		return true
	case TypeDefault:
		return t != TypeUnknown
	default:
		return t == class
	}
}

// Info captures metadata about a compute device.
type Info struct {
	Name             string `json:"name"`
	Vendor           string `json:"vendor"`
	Version          string `json:"version"`
	Type             Type   `json:"type"`
	MaxComputeUnits  uint32 `json:"maxComputeUnits"`
	MaxWorkGroupSize int    `json:"maxWorkGroupSize"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s, %d CU)", i.Name, i.Vendor, i.Type, i.MaxComputeUnits)
}

// PlatformInfo captures metadata about a platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []Info
}
