package model

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed sequence of vertices. The closing vertex may or may not
// repeat the first; containment tests handle both.
type Ring []Point

// Polygon is one polygon part: ring 0 is the outer ring, rings 1..n are
// holes subtracted from it.
type Polygon struct {
	Rings []Ring `json:"rings"`
}

// Boundary is a named administrative area, possibly multi-part. The polygon
// order within a boundary set is significant: the first containing boundary
// wins when areas overlap.
type Boundary struct {
	State    string    `json:"state"`
	Name     string    `json:"name"`
	Polygons []Polygon `json:"polygons"`
}
