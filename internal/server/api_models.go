package server

import (
	"github.com/raysh454/lotsync/internal/model"
)

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}

// VehicleListResponse wraps a dealership's inventory.
type VehicleListResponse struct {
	DealershipID string                `json:"dealership_id" example:"sunrise-motors"`
	Count        int                   `json:"count" example:"42"`
	Vehicles     []model.VehicleRecord `json:"vehicles"`
}

// CheckpointResponse reports a dealership's in-flight pass. Checkpoint is
// null when the last pass completed.
type CheckpointResponse struct {
	DealershipID string            `json:"dealership_id" example:"sunrise-motors"`
	Checkpoint   *model.Checkpoint `json:"checkpoint"`
}

// RecordViewRequest records a shopper view.
type RecordViewRequest struct {
	Source string `json:"source" example:"website"`
}

// OpenConversationRequest starts a chat thread about a vehicle.
type OpenConversationRequest struct {
	Customer string `json:"customer" example:"jane@example.com"`
}

// ConversationResponse returns the new thread id.
type ConversationResponse struct {
	ID string `json:"id" example:"6f1c0a3e-5a0e-4d7e-9a51-0c1f3b1e2d4a"`
}
