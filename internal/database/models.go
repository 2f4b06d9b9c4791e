package database

import (
	"time"

	"github.com/edgard/cropwise/internal/crop"
)

// Recommendation is one logged prediction. Only the inputs and the label are
// recorded, never chat content.
type Recommendation struct {
	ID          int64     `db:"id"          json:"id"`
	SessionID   string    `db:"session_id"  json:"session_id"`
	Surface     string    `db:"surface"     json:"surface"`
	N           int       `db:"n"           json:"n"`
	P           int       `db:"p"           json:"p"`
	K           int       `db:"k"           json:"k"`
	Temperature float64   `db:"temperature" json:"temperature"`
	Humidity    float64   `db:"humidity"    json:"humidity"`
	PH          float64   `db:"ph"          json:"ph"`
	Rainfall    float64   `db:"rainfall"    json:"rainfall"`
	Label       string    `db:"label"       json:"label"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
}

// NewRecommendation builds a record for a prediction made in sessionID.
func NewRecommendation(sessionID, surface string, v crop.InputVector, label string) *Recommendation {
	return &Recommendation{
		SessionID:   sessionID,
		Surface:     surface,
		N:           v.Nitrogen,
		P:           v.Phosphorus,
		K:           v.Potassium,
		Temperature: v.Temperature,
		Humidity:    v.Humidity,
		PH:          v.PH,
		Rainfall:    v.Rainfall,
		Label:       label,
	}
}

// Input returns the recorded measurements.
func (r Recommendation) Input() crop.InputVector {
	return crop.InputVector{
		Nitrogen:    r.N,
		Phosphorus:  r.P,
		Potassium:   r.K,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		PH:          r.PH,
		Rainfall:    r.Rainfall,
	}
}
