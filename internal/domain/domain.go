package domain

type Sorcerer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Grade     string `json:"grade" enum:"four,three,two,semi_one,one,special"`
	Status    string `json:"status" enum:"active,injured,retired"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Curse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Grade      string `json:"grade" enum:"four,three,two,semi_one,one,special"`
	LocationID *int64 `json:"location_id,omitempty"`
	Status     string `json:"status" enum:"detected,exorcised"`
	DetectedAt string `json:"detected_at" format:"date-time"`
}

type Location struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Prefecture string `json:"prefecture,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Request is a pending response to a detected curse. The curse reference is
// immutable after creation.
type Request struct {
	ID        int64  `json:"id"`
	CurseID   int64  `json:"curse_id"`
	Status    string `json:"status" enum:"pending,assigning,closed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Mission is the operational response dispatched against a curse. EndedAt,
// when set, must be strictly after StartedAt.
type Mission struct {
	ID               int64   `json:"id"`
	Status           string  `json:"status" enum:"pending,in_progress,succeeded,failed,canceled"`
	Urgency          string  `json:"urgency" enum:"planned,urgent,critical"`
	LocationID       *int64  `json:"location_id,omitempty"`
	StartedAt        string  `json:"started_at" format:"date-time"`
	EndedAt          *string `json:"ended_at,omitempty" format:"date-time"`
	Events           string  `json:"events,omitempty"`
	CollateralDamage string  `json:"collateral_damage,omitempty"`
}

// AssignmentInCharge links a request, the mission it spawned and the single
// sorcerer designated responsible. At most one live record per request.
type AssignmentInCharge struct {
	ID         int64  `json:"id"`
	RequestID  int64  `json:"request_id"`
	MissionID  int64  `json:"mission_id"`
	SorcererID int64  `json:"sorcerer_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// MissionAssignment links a mission to one participating sorcerer.
type MissionAssignment struct {
	ID         int64  `json:"id"`
	MissionID  int64  `json:"mission_id"`
	SorcererID int64  `json:"sorcerer_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Resource struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind" enum:"cursed_tool,talisman,vehicle,supply"`
	Quantity   int    `json:"quantity"`
	LocationID *int64 `json:"location_id,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Transfer struct {
	ID             int64  `json:"id"`
	ResourceID     int64  `json:"resource_id"`
	FromLocationID *int64 `json:"from_location_id,omitempty"`
	ToLocationID   int64  `json:"to_location_id"`
	Quantity       int    `json:"quantity"`
	TransferredAt  string `json:"transferred_at" format:"date-time"`
}

type Technique struct {
	ID          int64  `json:"id"`
	SorcererID  int64  `json:"sorcerer_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
