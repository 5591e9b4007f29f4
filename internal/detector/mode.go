package detector

import "fmt"

// Mode selects which object classes are reported.
type Mode int

const (
	// ModeHumanOnly reports people only.
	ModeHumanOnly Mode = 0
	// ModeHumanAndVehicle reports people and road vehicles.
	ModeHumanAndVehicle Mode = 1
)

// COCO class ids used by the mode filters.
const (
	ClassPerson     = 0
	ClassBicycle    = 1
	ClassCar        = 2
	ClassMotorcycle = 3
	ClassBus        = 5
	ClassTruck      = 7
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeHumanOnly || m == ModeHumanAndVehicle
}

func (m Mode) String() string {
	switch m {
	case ModeHumanOnly:
		return "human_only"
	case ModeHumanAndVehicle:
		return "human_and_vehicle"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Allows reports whether objects of the given class are reported in mode m.
func (m Mode) Allows(label int) bool {
	switch label {
	case ClassPerson:
		return true
	case ClassBicycle, ClassCar, ClassMotorcycle, ClassBus, ClassTruck:
		return m == ModeHumanAndVehicle
	default:
		return false
	}
}

// Filter returns the objects of b allowed by m, preserving order.
func (m Mode) Filter(b Batch) Batch {
	var out Batch
	for _, obj := range b {
		if m.Allows(obj.Label) {
			out = append(out, obj)
		}
	}
	return out
}
