package geometry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 20)}))

	square := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: 0, Y: 0}, {X: 0.001, Y: 0}, {X: 0.001, Y: 0.001}, {X: 0, Y: 0.001}, {X: 0, Y: 0},
	}}))
	row := w.Write(&square)
	require.NoError(t, w.WriteAttribute(int(row), 0, "north lot"))

	withHole := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 10, Y: 10}, {X: 10.01, Y: 10}, {X: 10.01, Y: 10.01}, {X: 10, Y: 10}},
		{{X: 10.001, Y: 10.001}, {X: 10.002, Y: 10.001}, {X: 10.002, Y: 10.002}, {X: 10.001, Y: 10.001}},
	}))
	row = w.Write(&withHole)
	require.NoError(t, w.WriteAttribute(int(row), 0, "south lot"))

	w.Close()

	// go-shp v0.1.1 names the attribute file "<base>dbf"; Open expects "<base>.dbf".
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	return path
}

func TestReadShapefile(t *testing.T) {
	features, err := ReadShapefile(writeTestShapefile(t))
	require.NoError(t, err)
	require.Len(t, features, 2)

	first := features[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "north lot", first.Attributes["NAME"])
	require.Len(t, first.Points, 4)
	assert.Equal(t, Point{Lat: 0, Lng: 0.001}, first.Points[1])

	second := features[1]
	assert.Equal(t, "south lot", second.Attributes["NAME"])
	require.Len(t, second.Points, 3, "only the outer ring of the first part is read")
	assert.Equal(t, Point{Lat: 10, Lng: 10}, second.Points[0])
}

func TestReadShapefile_MeasuresAsPolygon(t *testing.T) {
	features, err := ReadShapefile(writeTestShapefile(t))
	require.NoError(t, err)

	res, err := Measure(features[0].Points, ModePoly)
	require.NoError(t, err)
	require.NotNil(t, res.AreaSqm)

	side := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 0.001})
	assert.InEpsilon(t, side*side, *res.AreaSqm, 0.001)
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "missing.shp"))
	assert.Error(t, err)
}

func TestReadShapefile_AttributesPerRecord(t *testing.T) {
	features, err := ReadShapefile(writeTestShapefile(t))
	require.NoError(t, err)

	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Attributes["NAME"])
	}
	assert.Equal(t, []string{"north lot", "south lot"}, names)
}
