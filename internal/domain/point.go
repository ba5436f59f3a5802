package domain

// DefaultInfluenceRadiusM is the influence radius assigned to registry points.
const DefaultInfluenceRadiusM = 300

// Point is a monitored location. Points are read-only after registry load.
type Point struct {
	ID               string  `json:"id"`
	Name             string  `json:"nome"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Active           bool    `json:"ativo"`
	InfluenceRadiusM int     `json:"raio_influencia_m"`
	District         string  `json:"bairro,omitempty"`
	Description      string  `json:"descricao,omitempty"`
}
