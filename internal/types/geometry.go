package types

import (
	"fmt"
	"math"
)

// Point is an integer pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// PointF is a sub-pixel coordinate, typically a box center.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Trunc drops the fractional part of both coordinates.
func (p PointF) Trunc() Point {
	return Point{X: int(p.X), Y: int(p.Y)}
}

// Distance returns the Euclidean distance between p and q.
func (p PointF) Distance(q PointF) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is an axis-aligned bounding box in pixel coordinates (x1,y1 top-left, x2,y2 bottom-right).
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center returns the midpoint of the box.
func (b Box) Center() PointF {
	return PointF{
		X: float64(b.X1+b.X2) / 2,
		Y: float64(b.Y1+b.Y2) / 2,
	}
}

// Width in pixels
func (b Box) Width() int { return b.X2 - b.X1 }

// Height in pixels
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// CenterDistance is the Euclidean distance between the centers of a and b.
func CenterDistance(a, b Box) float64 {
	return a.Center().Distance(b.Center())
}

// Rect is a screen region given as origin plus size.
type Rect struct {
	Left   int `yaml:"left" json:"left"`
	Top    int `yaml:"top" json:"top"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Bounds is an inclusive rectangle given by its corners.
type Bounds struct {
	XMin int `yaml:"x_min" json:"x_min"`
	YMin int `yaml:"y_min" json:"y_min"`
	XMax int `yaml:"x_max" json:"x_max"`
	YMax int `yaml:"y_max" json:"y_max"`
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return b.XMin <= p.X && p.X <= b.XMax && b.YMin <= p.Y && p.Y <= b.YMax
}

// Clamp snaps p to the nearest point inside b.
func (b Bounds) Clamp(p Point) Point {
	return Point{
		X: max(b.XMin, min(p.X, b.XMax)),
		Y: max(b.YMin, min(p.Y, b.YMax)),
	}
}
