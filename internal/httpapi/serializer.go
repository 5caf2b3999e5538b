package httpapi

import (
	"fmt"
	"strings"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/schema"
)

const (
	nsDevices = "urn:mtconnect.org:MTConnectDevices:1.3"
	nsStreams = "urn:mtconnect.org:MTConnectStreams:1.3"
	nsAssets  = "urn:mtconnect.org:MTConnectAssets:1.3"
	nsError   = "urn:mtconnect.org:MTConnectError:1.3"
)

// BuildProbeXML projects the device schema tree into MTConnect's
// probe document (spec.md §4.5): no observation values, just the
// device→component→dataitem hierarchy.
func BuildProbeXML(devices []*schema.Device) *model.Node {
	root := &model.Node{Name: "MTConnectDevices", Attrs: map[string]string{"xmlns:m": nsDevices}}
	root.Children = append(root.Children, &model.Node{Name: "Header"})

	devicesNode := &model.Node{Name: "Devices"}
	for _, dev := range devices {
		devicesNode.Children = append(devicesNode.Children, buildProbeDevice(dev))
	}
	root.Children = append(root.Children, devicesNode)
	return root
}

func buildProbeDevice(dev *schema.Device) *model.Node {
	n := &model.Node{Name: "Device", Attrs: map[string]string{"uuid": dev.UUID, "name": dev.Name, "id": dev.UUID}}
	if len(dev.DataItems) > 0 {
		n.Children = append(n.Children, buildProbeDataItems(dev.DataItems))
	}
	if len(dev.Components) > 0 {
		comps := &model.Node{Name: "Components"}
		for _, c := range dev.Components {
			comps.Children = append(comps.Children, buildProbeComponent(c))
		}
		n.Children = append(n.Children, comps)
	}
	return n
}

func buildProbeComponent(c *schema.Component) *model.Node {
	n := &model.Node{Name: c.ComponentType, Attrs: map[string]string{"id": c.ID, "name": c.Name}}
	if len(c.DataItems) > 0 {
		n.Children = append(n.Children, buildProbeDataItems(c.DataItems))
	}
	if len(c.Components) > 0 {
		comps := &model.Node{Name: "Components"}
		for _, child := range c.Components {
			comps.Children = append(comps.Children, buildProbeComponent(child))
		}
		n.Children = append(n.Children, comps)
	}
	return n
}

func buildProbeDataItems(items []*schema.DataItem) *model.Node {
	n := &model.Node{Name: "DataItems"}
	for _, di := range items {
		attrs := map[string]string{"id": di.ID, "name": di.Name, "type": di.Type, "category": di.Category}
		if di.SubType != "" {
			attrs["subType"] = di.SubType
		}
		if di.Representation != "" {
			attrs["representation"] = di.Representation
		}
		n.Children = append(n.Children, &model.Node{Name: "DataItem", Attrs: attrs})
	}
	return n
}

// toPascal converts an upper-snake type constant (e.g. "AVAILABILITY",
// "TOOL_LIFE") into the PascalCase element name MTConnect uses for it
// (e.g. "Availability", "ToolLife").
func toPascal(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(strings.ToLower(s), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

func conditionTagForLevel(level string) string {
	switch level {
	case model.ConditionNormal:
		return "Normal"
	case model.ConditionWarning:
		return "Warning"
	case model.ConditionFault:
		return "Fault"
	case model.ConditionUnavailable:
		return "Unavailable"
	default:
		return "Condition"
	}
}

// BuildStreamsXML projects a set of observations into MTConnect's
// current/sample document shape (spec.md §4.5), grouped by device
// then by component, restricted to dataitems present in observations.
// activeConditions, when non-nil, switches CONDITION rendering to the
// aggregated "currently active" view used by /current; nil renders
// one historical element per observation, as /sample does.
func BuildStreamsXML(devices []*schema.Device, observations []model.Observation, activeConditions func(id string) []model.ConditionValue) *model.Node {
	byDevice := make(map[string]map[string][]model.Observation)
	for _, o := range observations {
		m, ok := byDevice[o.DeviceUUID]
		if !ok {
			m = make(map[string][]model.Observation)
			byDevice[o.DeviceUUID] = m
		}
		m[o.ID] = append(m[o.ID], o)
	}

	root := &model.Node{Name: "MTConnectStreams", Attrs: map[string]string{"xmlns:m": nsStreams}}
	root.Children = append(root.Children, &model.Node{Name: "Header"})

	streams := &model.Node{Name: "Streams"}
	for _, dev := range devices {
		byID := byDevice[dev.UUID]
		if len(byID) == 0 {
			continue
		}
		if ds := buildDeviceStream(dev, byID, activeConditions); ds != nil {
			streams.Children = append(streams.Children, ds)
		}
	}
	root.Children = append(root.Children, streams)
	return root
}

func buildDeviceStream(dev *schema.Device, byID map[string][]model.Observation, activeConditions func(string) []model.ConditionValue) *model.Node {
	root := &model.Node{Name: "DeviceStream", Attrs: map[string]string{"name": dev.Name, "uuid": dev.UUID}}

	if cs := buildComponentStreamFor("Device", dev.UUID, dev.Name, dev.DataItems, nil, byID, activeConditions); cs != nil {
		root.Children = append(root.Children, cs)
	}
	for _, c := range dev.Components {
		if cs := buildComponentStream(c, byID, activeConditions); cs != nil {
			root.Children = append(root.Children, cs)
		}
	}
	if len(root.Children) == 0 {
		return nil
	}
	return root
}

func buildComponentStream(c *schema.Component, byID map[string][]model.Observation, activeConditions func(string) []model.ConditionValue) *model.Node {
	var children []*model.Node
	for _, child := range c.Components {
		if cs := buildComponentStream(child, byID, activeConditions); cs != nil {
			children = append(children, cs)
		}
	}
	return buildComponentStreamFor(c.ComponentType, c.ID, c.Name, c.DataItems, children, byID, activeConditions)
}

func buildComponentStreamFor(componentType, id, name string, dataItems []*schema.DataItem, childComponents []*model.Node, byID map[string][]model.Observation, activeConditions func(string) []model.ConditionValue) *model.Node {
	categories := map[string][]*model.Node{}
	for _, di := range dataItems {
		obsList, ok := byID[di.ID]
		if !ok {
			continue
		}
		nodes := buildDataItemNodes(di, obsList, activeConditions)
		if len(nodes) == 0 {
			continue
		}
		cat := schema.CategoryContainerName(di.Category)
		categories[cat] = append(categories[cat], nodes...)
	}

	if len(categories) == 0 && len(childComponents) == 0 {
		return nil
	}

	node := &model.Node{Name: "ComponentStream", Attrs: map[string]string{"component": componentType, "name": name, "componentId": id}}
	for _, cat := range []string{"Samples", "Events", "Condition"} {
		if nodes, ok := categories[cat]; ok {
			node.Children = append(node.Children, &model.Node{Name: cat, Children: nodes})
		}
	}
	node.Children = append(node.Children, childComponents...)
	return node
}

func buildDataItemNodes(di *schema.DataItem, obsList []model.Observation, activeConditions func(string) []model.ConditionValue) []*model.Node {
	if di.Category == model.CategoryCondition && activeConditions != nil {
		return buildCurrentConditionNode(di, obsList, activeConditions)
	}
	if di.Category == model.CategoryCondition {
		return buildSampleConditionNodes(di, obsList)
	}

	var nodes []*model.Node
	for _, o := range obsList {
		nodes = append(nodes, buildValueNode(di, o))
	}
	return nodes
}

func buildCurrentConditionNode(di *schema.DataItem, obsList []model.Observation, activeConditions func(string) []model.ConditionValue) []*model.Node {
	if len(obsList) == 0 {
		return nil
	}
	latest := obsList[len(obsList)-1]
	active := activeConditions(di.ID)

	if len(active) == 0 {
		return []*model.Node{{Name: "Normal", Attrs: map[string]string{"name": di.Name, "sequence": fmt.Sprint(latest.Sequence), "timestamp": latest.Time}}}
	}

	outer := &model.Node{Name: toPascalOrDefault(di.Type, "Condition"), Attrs: map[string]string{"name": di.Name, "sequence": fmt.Sprint(latest.Sequence), "timestamp": latest.Time}}
	for _, cv := range active {
		entry := &model.Node{Name: "Entry", Attrs: map[string]string{
			"level": cv.Level, "nativeCode": cv.NativeCode, "nativeSeverity": cv.NativeSeverity, "qualifier": cv.Qualifier,
		}}
		entry.SetTextContent(cv.Message)
		outer.Children = append(outer.Children, entry)
	}
	return []*model.Node{outer}
}

func buildSampleConditionNodes(di *schema.DataItem, obsList []model.Observation) []*model.Node {
	var nodes []*model.Node
	for _, o := range obsList {
		cv := o.Value.Condition
		n := &model.Node{Name: conditionTagForLevel(cv.Level), Attrs: map[string]string{
			"name": di.Name, "sequence": fmt.Sprint(o.Sequence), "timestamp": o.Time,
			"nativeCode": cv.NativeCode, "nativeSeverity": cv.NativeSeverity, "qualifier": cv.Qualifier,
		}}
		n.SetTextContent(cv.Message)
		nodes = append(nodes, n)
	}
	return nodes
}

func toPascalOrDefault(s, def string) string {
	if p := toPascal(s); p != "" {
		return p
	}
	return def
}

func buildValueNode(di *schema.DataItem, o model.Observation) *model.Node {
	tag := toPascalOrDefault(di.Type, "Value")
	attrs := map[string]string{"name": di.Name, "sequence": fmt.Sprint(o.Sequence), "timestamp": o.Time}
	var text string

	switch o.Value.Kind {
	case model.KindTimeSeries:
		tag += "TimeSeries"
		attrs["sampleCount"] = o.Value.TimeSeries.SampleCount
		attrs["sampleRate"] = o.Value.TimeSeries.SampleRate
		text = o.Value.TimeSeries.Samples
	case model.KindMessage:
		if o.Value.Message.NativeCode != "" {
			attrs["nativeCode"] = o.Value.Message.NativeCode
		}
		text = o.Value.Message.Text
	case model.KindAlarm:
		attrs["code"] = o.Value.Alarm.Code
		if o.Value.Alarm.NativeCode != "" {
			attrs["nativeCode"] = o.Value.Alarm.NativeCode
		}
		attrs["severity"] = o.Value.Alarm.Severity
		attrs["state"] = o.Value.Alarm.State
		text = o.Value.Alarm.Text
	default:
		text = o.Value.Scalar
	}

	n := &model.Node{Name: tag, Attrs: attrs}
	n.SetTextContent(text)
	return n
}

// BuildAssetsXML projects assetBuffer entries back to MTConnect's
// assets document, reusing each asset's stored tree verbatim —
// multi-status child elements (e.g. repeated CutterStatus) are
// preserved because they were never collapsed on ingest.
func BuildAssetsXML(assets []*model.Asset) *model.Node {
	root := &model.Node{Name: "MTConnectAssets", Attrs: map[string]string{"xmlns:m": nsAssets}}
	root.Children = append(root.Children, &model.Node{Name: "Header"})

	assetsNode := &model.Node{Name: "Assets"}
	for _, a := range assets {
		assetsNode.Children = append(assetsNode.Children, buildAssetNode(a))
	}
	root.Children = append(root.Children, assetsNode)
	return root
}

func buildAssetNode(a *model.Asset) *model.Node {
	var n *model.Node
	if a.Value != nil {
		n = a.Value.Clone()
	} else {
		n = &model.Node{Name: a.AssetType}
		n.SetTextContent(a.RawValue)
	}
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs["assetId"] = a.AssetID
	n.Attrs["timestamp"] = a.Time
	if a.Removed {
		n.Attrs["removed"] = "true"
	}
	return n
}

// BuildErrorXML builds the <MTConnectError> body for client-facing
// error responses (spec.md §7).
func BuildErrorXML(code, message string) *model.Node {
	root := &model.Node{Name: "MTConnectError", Attrs: map[string]string{"xmlns:m": nsError}}
	root.Children = append(root.Children, &model.Node{Name: "Header"})

	errorsNode := &model.Node{Name: "Errors"}
	e := &model.Node{Name: "Error", Attrs: map[string]string{"errorCode": code}}
	e.SetTextContent(message)
	errorsNode.Children = append(errorsNode.Children, e)
	root.Children = append(root.Children, errorsNode)
	return root
}
