package query

import (
	"github.com/autom8ter/odm/errors"
	"gopkg.in/mgo.v2/bson"
)

func geoIndexOf(field Field) GeoIndex {
	if gf, ok := field.(GeoField); ok {
		return gf.GeoIndex()
	}
	return GeoSphere
}

func compileGeo(field Field, op Operator, value any) (any, error) {
	if geoIndexOf(field) == Geo2D {
		switch op {
		case OpWithinDistance:
			return bson.M{"$within": bson.M{"$center": value}}, nil
		case OpWithinSphericalDistance:
			return bson.M{"$within": bson.M{"$centerSphere": value}}, nil
		case OpWithinPolygon:
			return bson.M{"$within": bson.M{"$polygon": value}}, nil
		case OpWithinBox:
			return bson.M{"$within": bson.M{"$box": value}}, nil
		case OpNear:
			return bson.M{"$near": value}, nil
		case OpNearSphere:
			return bson.M{"$nearSphere": value}, nil
		case OpMaxDistance:
			return bson.M{"$maxDistance": value}, nil
		}
		return nil, errors.New(errors.InvalidQuery, "geo method %q has not been implemented for a 2d index", op)
	}
	switch op {
	case OpGeoWithin:
		geometry, err := InferGeometry(value)
		if err != nil {
			return nil, err
		}
		return bson.M{"$geoWithin": geometry}, nil
	case OpGeoWithinBox:
		return bson.M{"$geoWithin": bson.M{"$box": value}}, nil
	case OpGeoWithinPolygon:
		return bson.M{"$geoWithin": bson.M{"$polygon": value}}, nil
	case OpGeoWithinCenter:
		return bson.M{"$geoWithin": bson.M{"$center": value}}, nil
	case OpGeoWithinSphere:
		return bson.M{"$geoWithin": bson.M{"$centerSphere": value}}, nil
	case OpGeoIntersects:
		geometry, err := InferGeometry(value)
		if err != nil {
			return nil, err
		}
		return bson.M{"$geoIntersects": geometry}, nil
	case OpNear:
		geometry, err := InferGeometry(value)
		if err != nil {
			return nil, err
		}
		return bson.M{"$near": geometry}, nil
	case OpMaxDistance:
		return bson.M{"$maxDistance": value}, nil
	}
	return nil, errors.New(errors.InvalidQuery, "geo method %q has not been implemented for a GeoJSON field", op)
}

// InferGeometry wraps a coordinate value in a $geometry document. The nesting depth of the
// coordinates selects the type: 3 levels is a Polygon, 2 a LineString and 1 a Point.
func InferGeometry(value any) (bson.M, error) {
	if IsMapping(value) {
		if g, ok := lookup(value, "$geometry"); ok {
			return bson.M{"$geometry": g}, nil
		}
		_, hasType := lookup(value, "type")
		_, hasCoords := lookup(value, "coordinates")
		if hasType && hasCoords {
			return bson.M{"$geometry": value}, nil
		}
		return nil, errors.New(errors.InvalidQuery, "invalid $geometry dictionary definition")
	}
	var kind string
	switch depth := nesting(value); {
	case depth >= 3:
		kind = "Polygon"
	case depth == 2:
		kind = "LineString"
	case depth == 1:
		kind = "Point"
	default:
		return nil, errors.New(errors.InvalidQuery, "invalid $geometry data. Can be either a dictionary or (nested) lists of coordinate(s)")
	}
	return bson.M{"$geometry": bson.M{"type": kind, "coordinates": value}}, nil
}

func nesting(v any) int {
	s, ok := ToSlice(v)
	if !ok || len(s) == 0 {
		return 0
	}
	return 1 + nesting(s[0])
}
