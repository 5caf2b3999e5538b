// Package model holds the wire-independent data model shared by the
// schema registry, the SHDR parser, and the history/asset stores:
// dataitem kinds, the tagged observation value, and the asset XML
// tree.
package model

// ValueKind tags which shape an Observation's value carries.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindCondition
	KindMessage
	KindAlarm
	KindTimeSeries
)

// ConditionValue is the 5-tuple carried by a CONDITION category observation.
type ConditionValue struct {
	Level          string
	NativeCode     string
	NativeSeverity string
	Qualifier      string
	Message        string
}

// MessageValue is the 2-tuple carried by a MESSAGE type observation.
type MessageValue struct {
	NativeCode string
	Text       string
}

// AlarmValue is the 5-tuple carried by an ALARM type observation.
type AlarmValue struct {
	Code       string
	NativeCode string
	Severity   string
	State      string
	Text       string
}

// TimeSeriesValue is the sample-rate/sample-count/samples triple
// carried by a TIME_SERIES representation observation.
type TimeSeriesValue struct {
	SampleCount string
	SampleRate  string
	Samples     string
}

// Value is the tagged sum described in spec.md's Design Notes:
// Scalar | Condition | Message | Alarm | TimeSeries.
type Value struct {
	Kind       ValueKind
	Scalar     string
	Condition  ConditionValue
	Message    MessageValue
	Alarm      AlarmValue
	TimeSeries TimeSeriesValue
}

func ScalarValue(s string) Value { return Value{Kind: KindScalar, Scalar: s} }

func ConditionOf(level, nativeCode, nativeSeverity, qualifier, message string) Value {
	return Value{Kind: KindCondition, Condition: ConditionValue{level, nativeCode, nativeSeverity, qualifier, message}}
}

func MessageOf(nativeCode, text string) Value {
	return Value{Kind: KindMessage, Message: MessageValue{nativeCode, text}}
}

func AlarmOf(code, nativeCode, severity, state, text string) Value {
	return Value{Kind: KindAlarm, Alarm: AlarmValue{code, nativeCode, severity, state, text}}
}

func TimeSeriesOf(sampleCount, sampleRate, samples string) Value {
	return Value{Kind: KindTimeSeries, TimeSeries: TimeSeriesValue{sampleCount, sampleRate, samples}}
}

// Equal reports whether two values are suppression-equal. Scalar,
// MESSAGE and ALARM values suppress on field-by-field equality;
// CONDITION and TIME_SERIES are never suppressed (spec.md §9's Design Notes and the resolved
// Open Question on TIME_SERIES).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindScalar:
		return v.Scalar == other.Scalar
	case KindMessage:
		return v.Message == other.Message
	case KindAlarm:
		return v.Alarm == other.Alarm
	default:
		// CONDITION and TIME_SERIES always record.
		return false
	}
}

// DataItemKind is the subset of DataItem attributes the SHDR parser
// and the store need in order to decide field arity and suppression
// rules, without depending on the schema package's tree types.
type DataItemKind struct {
	ID             string
	Category       string // SAMPLE | EVENT | CONDITION
	Type           string // e.g. AVAILABILITY, VOLTAGE, MESSAGE, ALARM
	SubType        string
	Representation string // VALUE | TIME_SERIES
}

const (
	CategorySample    = "SAMPLE"
	CategoryEvent     = "EVENT"
	CategoryCondition = "CONDITION"

	RepresentationValue      = "VALUE"
	RepresentationTimeSeries = "TIME_SERIES"

	TypeMessage = "MESSAGE"
	TypeAlarm   = "ALARM"
)

// Synthetic dataitem names/ids used for asset lifecycle notifications.
// These are never resolved through SHDR name lookup (spec.md §4.1 rule 3).
const (
	AssetChangedID = "dev_asset_chg"
	AssetRemovedID = "dev_asset_rem"

	ConditionNormal      = "NORMAL"
	ConditionWarning     = "WARNING"
	ConditionFault       = "FAULT"
	ConditionUnavailable = "UNAVAILABLE"
)
