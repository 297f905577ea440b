package mockapi

// ItemDTO is a song or album as the catalog API returns it.
type ItemDTO struct {
	ID              uint     `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	AudioFilePath   string   `json:"audioFilePath,omitempty" yaml:"audioFilePath,omitempty"`
	PicFilePath     string   `json:"picFilePath,omitempty" yaml:"picFilePath,omitempty"`
	AlbumID         uint     `json:"albumId,omitempty" yaml:"albumId,omitempty"`
	SimilarityScore *float64 `json:"similarityScore,omitempty" yaml:"-"`
}

// ListResponse is the response for GET /api/songs and GET /api/albums
type ListResponse struct {
	Data       []ItemDTO `json:"data"`
	TotalItems int       `json:"totalItems"`
}

// SearchResponse is the response for the search-by-* endpoints. Time is
// milliseconds for audio and seconds for images.
type SearchResponse struct {
	Data []ItemDTO `json:"data"`
	Time float64   `json:"time"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Songs  int    `json:"songs"`
	Albums int    `json:"albums"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
