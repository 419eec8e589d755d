package kernel

import "github.com/google/uuid"

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// GenerationID identifies a generation record in the datastore. It is the id
// clients see and the key the synthesis backend reports status under.
type GenerationID string

func NewGenerationID() GenerationID { return GenerationID(uuid.NewString()) }
func (g GenerationID) String() string { return string(g) }
func (g GenerationID) IsEmpty() bool { return string(g) == "" }
