package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomizerhq/atomizer/internal/vectorstore"
)

func rec(id string, v ...float32) vectorstore.Record {
	return vectorstore.Record{ID: id, Vector: v, Metadata: vectorstore.Metadata{RecordID: id}}
}

func TestProjectRecordsEmpty(t *testing.T) {
	points, err := projectRecords(nil)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestProjectRecordsSingle(t *testing.T) {
	points, err := projectRecords([]vectorstore.Record{rec("a", 1, 2, 3, 4)})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, [2]float64{0, 0}, points[0].Position)
	assert.Equal(t, []float32{1, 2, 3, 4}, points[0].OriginalVector)
}

func TestProjectRecordsSeparatesClusters(t *testing.T) {
	records := []vectorstore.Record{
		rec("a1", 1, 0, 0, 0),
		rec("a2", 0.9, 0.1, 0, 0),
		rec("b1", 0, 0, 1, 0),
		rec("b2", 0, 0.1, 0.9, 0),
	}
	points, err := projectRecords(records)
	require.NoError(t, err)
	require.Len(t, points, 4)

	dist := func(p, q Point) float64 {
		dx := p.Position[0] - q.Position[0]
		dy := p.Position[1] - q.Position[1]
		return math.Hypot(dx, dy)
	}
	within := dist(points[0], points[1])
	across := dist(points[0], points[2])
	assert.Less(t, within, across, "cluster members should land closer than cluster strangers")
}

func TestProjectRecordsDimensionMismatch(t *testing.T) {
	_, err := projectRecords([]vectorstore.Record{
		rec("a", 1, 0, 0),
		rec("b", 1, 0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestProjectRecordsPreservesMetadata(t *testing.T) {
	records := []vectorstore.Record{
		{ID: "v1", Vector: []float32{1, 0}, Metadata: vectorstore.Metadata{RecordID: "r1", Type: "atom"}},
		{ID: "v2", Vector: []float32{0, 1}, Metadata: vectorstore.Metadata{RecordID: "r2", Type: "source"}},
	}
	points, err := projectRecords(records)
	require.NoError(t, err)
	assert.Equal(t, "atom", points[0].Metadata.Type)
	assert.Equal(t, "source", points[1].Metadata.Type)
}
