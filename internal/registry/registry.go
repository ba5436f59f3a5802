// Package registry loads the monitored points from CSV.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/icra-risk-service/internal/domain"
)

// Column names. local, latitude and longitude are required.
const (
	colName        = "local"
	colLat         = "latitude"
	colLon         = "longitude"
	colDistrict    = "bairro"
	colDescription = "descricao"
)

// Registry is an immutable, ordered set of points.
type Registry struct {
	points []domain.Point
	byID   map[string]domain.Point
}

// Load reads the registry CSV at path.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: path, Err: err}
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: path, Err: err}
	}
	return r, nil
}

// Parse reads registry rows from r. IDs are assigned by row order as p1..pN.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("registry is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colName, colLat, colLon} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	reg := &Registry{byID: make(map[string]domain.Point)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := cr.FieldPos(0)
		p, err := parseRow(rec, cols, len(reg.points)+1)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reg.points = append(reg.points, p)
		reg.byID[p.ID] = p
	}
	return reg, nil
}

func parseRow(rec []string, cols map[string]int, n int) (domain.Point, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	lat, err := strconv.ParseFloat(field(colLat), 64)
	if err != nil || lat < -90 || lat > 90 {
		return domain.Point{}, fmt.Errorf("invalid latitude %q", field(colLat))
	}
	lon, err := strconv.ParseFloat(field(colLon), 64)
	if err != nil || lon < -180 || lon > 180 {
		return domain.Point{}, fmt.Errorf("invalid longitude %q", field(colLon))
	}

	return domain.Point{
		ID:               "p" + strconv.Itoa(n),
		Name:             field(colName),
		Lat:              lat,
		Lon:              lon,
		Active:           true,
		InfluenceRadiusM: domain.DefaultInfluenceRadiusM,
		District:         field(colDistrict),
		Description:      field(colDescription),
	}, nil
}

// New builds a registry from already-parsed points.
func New(points []domain.Point) *Registry {
	reg := &Registry{points: slices.Clone(points), byID: make(map[string]domain.Point, len(points))}
	for _, p := range points {
		reg.byID[p.ID] = p
	}
	return reg
}

// All returns the points in registry order.
func (r *Registry) All() []domain.Point {
	return slices.Clone(r.points)
}

// Len returns the number of points.
func (r *Registry) Len() int { return len(r.points) }

// Get returns the point with id or domain.ErrPointNotFound.
func (r *Registry) Get(id string) (domain.Point, error) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Point{}, fmt.Errorf("%w: %s", domain.ErrPointNotFound, id)
	}
	return p, nil
}
