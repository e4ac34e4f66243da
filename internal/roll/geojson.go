package roll

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/civicworks/roster-cli/internal/model"
)

// ExportGeoJSON writes geocoded voters as a GeoJSON FeatureCollection for
// the constituency mapping screens. Voters without coordinates are skipped.
func ExportGeoJSON(w io.Writer, voters []model.Voter) error {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for i := range voters {
		v := &voters[i]
		if !v.Geocoded() {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       v.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{*v.Lng, *v.Lat}),
			Properties: map[string]any{
				"name":     v.Name,
				"address":  v.Address,
				"locality": v.Locality,
			},
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "roll: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "roll: write geojson")
	}
	return nil
}
