package schema

import "encoding/json"

// dataItemDoc and componentDoc mirror the pre-parsed device JSON
// shape from spec.md §6: {devices:[{uuid, name, components:[...],
// dataitems:[...]}]}. Field names are case-insensitive on decode
// (encoding/json default), but we emit lowerCamel consistently.

type dataItemDoc struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	SubType        string `json:"subType"`
	Representation string `json:"representation"`
}

type componentDoc struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Components []componentDoc `json:"components"`
	DataItems  []dataItemDoc  `json:"dataitems"`
}

type deviceDoc struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	Components []componentDoc `json:"components"`
	DataItems  []dataItemDoc  `json:"dataitems"`
}

type devicesDoc struct {
	Devices []deviceDoc `json:"devices"`
}

func decodeDataItem(d dataItemDoc) *DataItem {
	return &DataItem{
		ID:             d.ID,
		Name:           d.Name,
		Type:           d.Type,
		Category:       d.Category,
		SubType:        d.SubType,
		Representation: d.Representation,
	}
}

func decodeComponent(c componentDoc) *Component {
	comp := &Component{ID: c.ID, ComponentType: c.Type, Name: c.Name}
	for _, child := range c.Components {
		comp.Components = append(comp.Components, decodeComponent(child))
	}
	for _, di := range c.DataItems {
		comp.DataItems = append(comp.DataItems, decodeDataItem(di))
	}
	return comp
}

func decodeDevice(d deviceDoc) *Device {
	dev := &Device{UUID: d.UUID, Name: d.Name}
	for _, child := range d.Components {
		dev.Components = append(dev.Components, decodeComponent(child))
	}
	for _, di := range d.DataItems {
		dev.DataItems = append(dev.DataItems, decodeDataItem(di))
	}
	return dev
}

// ParseDeviceJSON decodes a single device document.
func ParseDeviceJSON(raw []byte) (*Device, error) {
	var doc deviceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return decodeDevice(doc), nil
}

// ParseDevicesJSON decodes the {devices:[...]} wrapper shape.
func ParseDevicesJSON(raw []byte) ([]*Device, error) {
	var doc devicesDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(doc.Devices))
	for _, d := range doc.Devices {
		devices = append(devices, decodeDevice(d))
	}
	return devices, nil
}
