package dto

type DiscoveryCandidateResponse struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	FirstName string   `json:"first_name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	Bio       string   `json:"bio"`
	Photos    []string `json:"photos"`
	PhotoURL  string   `json:"photo_url,omitempty"`
	City      string   `json:"city"`
	Distance  float64  `json:"distance"`
}

type DiscoveryResponse struct {
	Items []DiscoveryCandidateResponse `json:"items"`
}
