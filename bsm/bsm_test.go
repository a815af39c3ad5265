package bsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
  "coreData": {
    "id": "ABCDEF01",
    "speed_mps": 12.5,
    "position": {"latitude": 35.9106, "longitude": -84.0913}
  },
  "partII": [
    {
      "pathHistory": {
        "crumbs": [
          {"position": {"latitude": 35.9105, "longitude": -84.0912}, "deltaTime": 100},
          {"position": {"latitude": 35.9104, "longitude": -84.0911}, "deltaTime": 100}
        ]
      }
    }
  ]
}`

func TestParseValidDocument(t *testing.T) {
	doc, err := Parse([]byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF01", doc.ID())
	assert.InDelta(t, 12.5, doc.SpeedMPS(), 0.0001)

	pos, ok := doc.Position()
	require.True(t, ok)
	assert.InDelta(t, 35.9106, pos.Lat, 0.0001)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"coreData": `))
	assert.Error(t, err)
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse([]byte(`{"coreData": {"position": {"latitude": 1, "longitude": 1}}}`))
	assert.Error(t, err)
}

func TestParseRejectsMissingPosition(t *testing.T) {
	_, err := Parse([]byte(`{"coreData": {"id": "X"}}`))
	assert.Error(t, err)
}

func TestExtractTrajectoryIncludesCrumbsInOrder(t *testing.T) {
	doc, err := Parse([]byte(validPayload))
	require.NoError(t, err)

	traj := doc.ExtractTrajectory()
	require.Len(t, traj, 3)
	assert.InDelta(t, 35.9106, traj[0].Lat, 0.0001)
	assert.InDelta(t, 35.9105, traj[1].Lat, 0.0001)
	assert.InDelta(t, 35.9104, traj[2].Lat, 0.0001)
}

func TestExtractTrajectoryWithoutPathHistoryIsSinglePoint(t *testing.T) {
	doc, err := Parse([]byte(`{"coreData": {"id": "X", "position": {"latitude": 1, "longitude": 2}}}`))
	require.NoError(t, err)
	assert.Len(t, doc.ExtractTrajectory(), 1)
}

func TestRedactOverwritesIDOnly(t *testing.T) {
	doc, err := Parse([]byte(validPayload))
	require.NoError(t, err)

	before := doc.SpeedMPS()
	require.NoError(t, doc.Redact("REDACTED"))
	assert.Equal(t, "REDACTED", doc.ID())
	assert.InDelta(t, before, doc.SpeedMPS(), 0.0001)
}

func TestSerializeRoundTripPreservesOtherFields(t *testing.T) {
	doc, err := Parse([]byte(validPayload))
	require.NoError(t, err)

	out, err := doc.Serialize()
	require.NoError(t, err)

	roundTripped, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, doc.Equal(roundTripped))
}

func TestRedactThenSerializePreservesTrajectory(t *testing.T) {
	doc, err := Parse([]byte(validPayload))
	require.NoError(t, err)
	require.NoError(t, doc.Redact("REDACTED"))

	out, err := doc.Serialize()
	require.NoError(t, err)

	roundTripped, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "REDACTED", roundTripped.ID())
	assert.Len(t, roundTripped.ExtractTrajectory(), 3)
}
