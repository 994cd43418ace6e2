package server

// Request payloads

type CreateSorcererRequest struct {
	Name   string `json:"name"`
	Grade  string `json:"grade"`
	Status string `json:"status,omitempty" enum:"active,injured,retired"`
}

type UpdateSorcererRequest struct {
	Grade  *string `json:"grade,omitempty"`
	Status *string `json:"status,omitempty" enum:"active,injured,retired"`
}

type CreateCurseRequest struct {
	Name       string `json:"name"`
	Grade      string `json:"grade"`
	LocationID *int64 `json:"location_id,omitempty"`
}

type CreateLocationRequest struct {
	Name       string `json:"name"`
	Prefecture string `json:"prefecture,omitempty"`
}

type CreateRequestRequest struct {
	CurseID int64 `json:"curse_id"`
}

type CreateMissionRequest struct {
	Urgency string `json:"urgency,omitempty"`
}

type CreateResourceRequest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Quantity   int    `json:"quantity"`
	LocationID *int64 `json:"location_id,omitempty"`
}

type UpdateResourceRequest struct {
	Quantity   *int   `json:"quantity,omitempty"`
	LocationID *int64 `json:"location_id,omitempty"`
}

type CreateTransferRequest struct {
	ResourceID   int64 `json:"resource_id"`
	ToLocationID int64 `json:"to_location_id"`
	Quantity     int   `json:"quantity"`
}

type CreateTechniqueRequest struct {
	SorcererID  int64  `json:"sorcerer_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Lifecycle transition payloads. These keep the wire shape of the original
// administrative API, which is camelCase unlike the rest of the surface.

type TransitionRequestBody struct {
	Status             string `json:"status" enum:"pending,assigning,closed"`
	AssignedSorcererID *int64 `json:"assignedSorcererId,omitempty"`
	Urgency            string `json:"urgency,omitempty"`
}

type TransitionMissionBody struct {
	Status           string  `json:"status" enum:"pending,in_progress,succeeded,failed,canceled"`
	LocationID       *int64  `json:"locationId,omitempty"`
	SorcererIDs      []int64 `json:"sorcererIds,omitempty"`
	Events           string  `json:"events,omitempty"`
	CollateralDamage string  `json:"collateralDamage,omitempty"`
	EndedAt          string  `json:"endedAt,omitempty" format:"date-time"`
}

// Transition outcomes

type RequestGenerated struct {
	MissionID    int64 `json:"missionId"`
	AssignmentID int64 `json:"assignmentId"`
}

type MissionGenerated struct {
	MissionID            int64   `json:"missionId"`
	MissionAssignmentIDs []int64 `json:"missionAssignmentIds"`
}

type RequestTransitionOutcome struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Generated *RequestGenerated `json:"generated,omitempty"`
}

type MissionTransitionOutcome struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Generated *MissionGenerated `json:"generated,omitempty"`
}

type DeleteOutcome struct {
	Success bool `json:"success"`
}
