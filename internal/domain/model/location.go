package model

import "github.com/paulmach/orb"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
}

func (l Location) Point() orb.Point {
	return orb.Point{l.Longitude, l.Latitude}
}
