package analysis

type AnalyzeForm struct {
	Latitude  string `form:"latitude" validate:"required"`
	Longitude string `form:"longitude" validate:"required"`
}

type AnalyzeInput struct {
	Image     []byte
	Filename  string
	Latitude  float64
	Longitude float64
}

type AnalysisResponse struct {
	IsAuthorized bool   `json:"is_authorized"`
	Reason       string `json:"reason"`
	SubmissionID string `json:"submission_id,omitempty"`
}

type WSAnalyzeRequest struct {
	ImageBase64 string   `json:"image_base64" validate:"required,base64"`
	Latitude    *float64 `json:"latitude" validate:"required"`
	Longitude   *float64 `json:"longitude" validate:"required"`
}

type ZoneResponse struct {
	Name       string  `json:"name"`
	LatMin     float64 `json:"lat_min"`
	LatMax     float64 `json:"lat_max"`
	LonMin     float64 `json:"lon_min"`
	LonMax     float64 `json:"lon_max"`
	Authorized bool    `json:"authorized"`
	Reason     string  `json:"reason"`
}

type SubmissionResponse struct {
	ID            string  `json:"id"`
	ImageFilename string  `json:"image_filename"`
	ImageURL      string  `json:"image_url,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	IsAuthorized  bool    `json:"is_authorized"`
	Reason        string  `json:"reason"`
	State         string  `json:"state"`
	Detections    int     `json:"detections"`
	CreatedAt     string  `json:"created_at"`
}

type SubmissionListResponse struct {
	Submissions []SubmissionResponse `json:"submissions"`
	Count       int                  `json:"count"`
}
