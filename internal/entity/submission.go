package entity

import "time"

type Submission struct {
	ID            string    `json:"id"`
	ImageFilename string    `json:"image_filename"`
	ImageURL      string    `json:"image_url,omitempty"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	IsAuthorized  bool      `json:"is_authorized"`
	Reason        string    `json:"reason"`
	State         string    `json:"state"`
	Detections    int       `json:"detections"`
	CreatedAt     time.Time `json:"created_at"`
}
