package handler

import "time"

const maxBatchSamples = 500

type sampleRequest struct {
	Latitude   float64   `json:"latitude"    validate:"latitude"`
	Longitude  float64   `json:"longitude"   validate:"longitude"`
	Accuracy   float64   `json:"accuracy"    validate:"gte=0"`
	CapturedAt time.Time `json:"captured_at"`
}

type locationErrorRequest struct {
	Code string `json:"code" validate:"required,oneof=permission_denied position_unavailable timeout"`
}

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}
