package model

import (
	"maps"
	"slices"
	"time"
)

type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is the unit of data flowing from extract, through transforms, to loads.
type Series struct {
	Name     string            `json:"name"`
	Points   []Point           `json:"points"`
	Messages []string          `json:"messages,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Clone returns a deep copy, transforms modify the copy.
func (s Series) Clone() Series {
	return Series{
		Name:     s.Name,
		Points:   slices.Clone(s.Points),
		Messages: slices.Clone(s.Messages),
		Tags:     maps.Clone(s.Tags),
	}
}

// Last returns the latest point by time.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	last := s.Points[0]
	for _, p := range s.Points[1:] {
		if !p.Time.Before(last.Time) {
			last = p
		}
	}
	return last, true
}

func (s Series) WithTag(key, value string) Series {
	out := s.Clone()
	if out.Tags == nil {
		out.Tags = make(map[string]string)
	}
	out.Tags[key] = value
	return out
}
