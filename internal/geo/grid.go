// Package geo bins scan geolocations into grid cells for the admin heatmap.
package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
)

// DefaultCellSize is the grid resolution in degrees (~55 km at the equator).
const DefaultCellSize = 0.5

// Cell is one occupied heatmap cell. Lat/Lng is the cell center.
type Cell struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Count int     `json:"count"`
}

// Bin groups points into a fixed-size grid and returns occupied cells,
// densest first. Points with out-of-range coordinates are dropped.
func Bin(points []model.Geolocation, cellSize float64) []Cell {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	counts := make(map[string]*Cell)
	for _, p := range points {
		pt := geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}).SetSRID(4326)
		if !validPoint(pt) {
			continue
		}

		row := math.Floor(pt.Y() / cellSize)
		col := math.Floor(pt.X() / cellSize)
		key := fmt.Sprintf("%.0f:%.0f", row, col)

		cell, ok := counts[key]
		if !ok {
			cell = &Cell{
				Lat: (row + 0.5) * cellSize,
				Lng: (col + 0.5) * cellSize,
			}
			counts[key] = cell
		}
		cell.Count++
	}

	cells := make([]Cell, 0, len(counts))
	for _, c := range counts {
		cells = append(cells, *c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lng < cells[j].Lng
	})
	return cells
}

func validPoint(pt *geom.Point) bool {
	lng, lat := pt.X(), pt.Y()
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
