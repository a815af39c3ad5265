package shape

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/geo"
)

// LoadCSV parses a mapfile of shape records into Entities.
//
// Row format (no header): kind,field...
//
//	circle,lat,lon,radius_m,type_tag
//	edge,a_lat,a_lon,b_lat,b_lon,width_m,way_type
//	grid,sw_lat,sw_lon,ne_lat,ne_lon,row,col
//
// Blank lines and lines starting with '#' are skipped.
func LoadCSV(r io.Reader) ([]Entity, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var entities []Entity
	line := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.WrapInvalid(err, "shape", "LoadCSV", fmt.Sprintf("row %d", line))
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		entity, err := parseRow(record)
		if err != nil {
			return nil, errors.WrapInvalid(err, "shape", "LoadCSV", fmt.Sprintf("row %d", line))
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

func parseRow(record []string) (Entity, error) {
	kind := strings.ToLower(strings.TrimSpace(record[0]))
	fields := record[1:]

	switch kind {
	case "circle":
		if len(fields) < 3 {
			return nil, fmt.Errorf("circle row needs lat,lon,radius_m[,type_tag]")
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("circle lat: %w", err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("circle lon: %w", err)
		}
		radius, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("circle radius_m: %w", err)
		}
		tag := ""
		if len(fields) > 3 {
			tag = strings.TrimSpace(fields[3])
		}
		return Circle{Center: geo.Point{Lat: lat, Lon: lon}, Radius: radius, TypeTag: tag}, nil

	case "edge":
		if len(fields) < 5 {
			return nil, fmt.Errorf("edge row needs a_lat,a_lon,b_lat,b_lon,width_m[,way_type]")
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("edge field %d: %w", i, err)
			}
			vals[i] = v
		}
		wayType := ""
		if len(fields) > 5 {
			wayType = strings.TrimSpace(fields[5])
		}
		return Edge{
			A:       geo.Point{Lat: vals[0], Lon: vals[1]},
			B:       geo.Point{Lat: vals[2], Lon: vals[3]},
			WidthM:  vals[4],
			WayType: wayType,
		}, nil

	case "grid":
		if len(fields) < 6 {
			return nil, fmt.Errorf("grid row needs sw_lat,sw_lon,ne_lat,ne_lon,row,col")
		}
		coords := make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("grid field %d: %w", i, err)
			}
			coords[i] = v
		}
		row, err := strconv.Atoi(strings.TrimSpace(fields[4]))
		if err != nil {
			return nil, fmt.Errorf("grid row: %w", err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(fields[5]))
		if err != nil {
			return nil, fmt.Errorf("grid col: %w", err)
		}
		return Grid{
			BBox_: geo.BoundingBox{
				SW: geo.Point{Lat: coords[0], Lon: coords[1]},
				NE: geo.Point{Lat: coords[2], Lon: coords[3]},
			},
			Row: row,
			Col: col,
		}, nil

	default:
		return nil, fmt.Errorf("unknown shape kind %q", kind)
	}
}
