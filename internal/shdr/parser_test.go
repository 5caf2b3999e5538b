package shdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

type fakeResolver map[string]model.DataItemKind

func (f fakeResolver) Resolve(uuid, name string) (model.DataItemKind, bool) {
	k, ok := f[name]
	return k, ok
}

func TestParseScalarObservation(t *testing.T) {
	p := NewParser(fakeResolver{"avail": {ID: "dev_avail", Category: model.CategoryEvent, Type: "AVAILABILITY", Representation: model.RepresentationValue}}, nil)

	res, err := p.Parse("000", "2014-08-11T08:32:54.028533Z|avail|AVAILABLE")
	require.NoError(t, err)
	require.Len(t, res.Observations, 1)

	o := res.Observations[0]
	assert.Equal(t, "2014-08-11T08:32:54.028533Z", o.Time)
	assert.Equal(t, "dev_avail", o.ID)
	assert.Equal(t, "AVAILABLE", o.Value.Scalar)
}

func TestParseConditionTuple(t *testing.T) {
	p := NewParser(fakeResolver{"htemp": {ID: "dev_htemp", Category: model.CategoryCondition}}, nil)

	res, err := p.Parse("000", "2010-09-29T23:59:33.460470Z|htemp|WARNING|HTEMP|1|HIGH|Oil Temperature High")
	require.NoError(t, err)
	require.Len(t, res.Observations, 1)

	cv := res.Observations[0].Value.Condition
	assert.Equal(t, model.ConditionValue{
		Level: "WARNING", NativeCode: "HTEMP", NativeSeverity: "1", Qualifier: "HIGH", Message: "Oil Temperature High",
	}, cv)
}

func TestParseTimeSeriesConsumesRemainderOfLine(t *testing.T) {
	p := NewParser(fakeResolver{"Va": {ID: "dev_va", Category: model.CategorySample, Type: "VOLTAGE", Representation: model.RepresentationTimeSeries}}, nil)

	res, err := p.Parse("000", "2|Va|10||3499359 3499094 3499071")
	require.NoError(t, err)
	require.Len(t, res.Observations, 1)

	ts := res.Observations[0].Value.TimeSeries
	assert.Equal(t, "10", ts.SampleCount)
	assert.Equal(t, "", ts.SampleRate)
	assert.Equal(t, "3499359 3499094 3499071", ts.Samples)
	assert.Equal(t, "2", res.Observations[0].Time)
}

func TestParseUnknownNameSkipsPair(t *testing.T) {
	p := NewParser(fakeResolver{}, nil)

	res, err := p.Parse("000", "2020-01-01T00:00:00Z|mystery|42")
	require.NoError(t, err)
	assert.Empty(t, res.Observations)
}

func TestParseAssetCommand(t *testing.T) {
	p := NewParser(fakeResolver{}, nil)

	res, err := p.Parse("000", "2020-01-01T00:00:00Z|@ASSET@|EM233|CuttingTool|<CuttingTool/>")
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	assert.Equal(t, model.VerbAsset, res.Asset.Verb)
	assert.Equal(t, "EM233", res.Asset.AssetID)
	assert.Equal(t, "<CuttingTool/>", res.Asset.Body)
}

func TestParseMultilineAssetBuffersUntilSentinel(t *testing.T) {
	p := NewParser(fakeResolver{}, nil)

	res, err := p.Parse("000", "2020-01-01T00:00:00Z|@ASSET@|EM233|CuttingTool|--multiline--AAA")
	require.NoError(t, err)
	assert.Nil(t, res.Asset)

	res, err = p.Parse("000", "<CuttingTool>")
	require.NoError(t, err)
	assert.Nil(t, res.Asset)

	res, err = p.Parse("000", "</CuttingTool>")
	require.NoError(t, err)
	assert.Nil(t, res.Asset)

	res, err = p.Parse("000", "--multiline--AAA")
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	assert.Equal(t, "<CuttingTool>\n</CuttingTool>", res.Asset.Body)
}

func TestParseUpdateAssetKVForm(t *testing.T) {
	p := NewParser(fakeResolver{}, nil)

	res, err := p.Parse("000", "2020-01-01T00:00:00Z|@UPDATE_ASSET@|EM233|ToolLife|120|CuttingDiameterMax|40")
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	require.Len(t, res.Asset.KVPairs, 2)
	assert.Equal(t, model.KV{Name: "ToolLife", Value: "120"}, res.Asset.KVPairs[0])
}

func TestParseRemoveAllAssets(t *testing.T) {
	p := NewParser(fakeResolver{}, nil)

	res, err := p.Parse("000", "2020-01-01T00:00:00Z|@REMOVE_ALL_ASSETS@|CuttingTool")
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	assert.Equal(t, model.VerbRemoveAllAssets, res.Asset.Verb)
	assert.Equal(t, "CuttingTool", res.Asset.AssetType)
}
