package enums

import "fmt"

// ShipType selects the carrier service used for a parcel.
type ShipType string

const (
	ShipTypeStandard ShipType = "standard"
	ShipTypeHeavy    ShipType = "heavy"
)

var carrierServiceTypes = map[ShipType]int{
	ShipTypeStandard: 2,
	ShipTypeHeavy:    5,
}

func (s ShipType) String() string {
	return string(s)
}

func (s ShipType) IsValid() bool {
	_, ok := carrierServiceTypes[s]
	return ok
}

// CarrierServiceType returns the carrier's numeric service id.
func (s ShipType) CarrierServiceType() int {
	return carrierServiceTypes[s]
}

// ParseShipType converts raw input; empty input selects the standard service.
func ParseShipType(value string) (ShipType, error) {
	if value == "" {
		return ShipTypeStandard, nil
	}
	candidate := ShipType(value)
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid ship type %q", value)
	}
	return candidate, nil
}
