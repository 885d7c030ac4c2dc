package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const placeholderName = "Unknown"

// AddressPart is an administrative unit as returned by the carrier catalogue.
// Older rows stored numeric ids, so both forms decode.
type AddressPart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *AddressPart) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Code json.RawMessage `json:"code"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := raw.ID
	if len(id) == 0 {
		id = raw.Code
	}
	p.Name = raw.Name
	p.ID = strings.Trim(string(bytes.TrimSpace(id)), `"`)
	if p.ID == "null" {
		p.ID = ""
	}
	return nil
}

// ShippingAddress is the destination persisted on an order as JSON.
type ShippingAddress struct {
	Detail   string      `json:"detail,omitempty"`
	Province AddressPart `json:"province"`
	District AddressPart `json:"district"`
	Ward     AddressPart `json:"ward"`
}

type wardPart struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// MarshalJSON writes the ward under "code", the key the carrier uses.
func (a ShippingAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Detail   string      `json:"detail,omitempty"`
		Province AddressPart `json:"province"`
		District AddressPart `json:"district"`
		Ward     wardPart    `json:"ward"`
	}{
		Detail:   a.Detail,
		Province: a.Province,
		District: a.District,
		Ward:     wardPart{Code: a.Ward.ID, Name: a.Ward.Name},
	})
}

// PlaceholderAddress is returned for absent or unreadable address payloads.
var PlaceholderAddress = ShippingAddress{
	Province: AddressPart{Name: placeholderName},
	District: AddressPart{Name: placeholderName},
	Ward:     AddressPart{Name: placeholderName},
}

// IsPlaceholder reports whether the address carries no real destination.
func (a ShippingAddress) IsPlaceholder() bool {
	return a == PlaceholderAddress
}

// DistrictID parses the district id the carrier expects as an integer.
func (a ShippingAddress) DistrictID() (int, error) {
	raw := strings.TrimSpace(a.District.ID)
	if raw == "" {
		return 0, fmt.Errorf("address: district id missing")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("address: district id %q is not numeric", raw)
	}
	return id, nil
}

// WardCode returns the carrier ward code.
func (a ShippingAddress) WardCode() string {
	return strings.TrimSpace(a.Ward.ID)
}

// Validate checks the fields required to quote and ship a parcel.
func (a ShippingAddress) Validate() error {
	if _, err := a.DistrictID(); err != nil {
		return err
	}
	if a.WardCode() == "" {
		return fmt.Errorf("address: ward code missing")
	}
	return nil
}

// String renders a single line for labels and logs.
func (a ShippingAddress) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Detail, a.Ward.Name, a.District.Name, a.Province.Name} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ParseShippingAddress decodes raw JSON, falling back to PlaceholderAddress.
func ParseShippingAddress(raw []byte) ShippingAddress {
	if len(bytes.TrimSpace(raw)) == 0 {
		return PlaceholderAddress
	}
	var addr ShippingAddress
	if err := json.Unmarshal(raw, &addr); err != nil {
		return PlaceholderAddress
	}
	if addr == (ShippingAddress{}) {
		return PlaceholderAddress
	}
	return addr
}

// Value serializes the address to JSON text.
func (a ShippingAddress) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan never fails on content: unreadable payloads become PlaceholderAddress.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = PlaceholderAddress
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	*a = ParseShippingAddress(raw)
	return nil
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json scan type %T", value)
	}
}
