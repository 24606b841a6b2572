package items

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusModified Status = "modified"
)

// Item es propiedad del subsistema de ítems de revisión. Este core nunca
// los crea ni los borra: los lee para agregación y escribe las transiciones
// de status/marcado que pasan por él.
type Item struct {
	ID        int
	DatasetID int
	SeqNum    int // posición lógica dentro del dataset

	OriginalContent string
	CurrentContent  string

	Status   Status
	IsMarked bool // marcado por el revisor (dudoso / para delegar)

	ReviewedBy string
	ReviewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasChanges indica si el contenido fue editado respecto del original.
func (i Item) HasChanges() bool {
	return i.OriginalContent != i.CurrentContent
}
