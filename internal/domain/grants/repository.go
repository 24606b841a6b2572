package grants

import "context"

// Repository persiste grants y su auditoría de revisiones.
//
// Contrato de errores: GetByID/GetByCode devuelven ErrNotFound si no existe;
// Create devuelve ErrCodeTaken si el código ya está tomado (el service
// reintenta con otro código). Los contadores current_online/verify_count
// NO se mutan por acá: solo los toca el repositorio de sesiones dentro de
// su unidad atómica de admisión/liberación.
type Repository interface {
	Create(ctx context.Context, g Grant) error
	GetByID(ctx context.Context, id string) (Grant, error)
	GetByCode(ctx context.Context, code string) (Grant, error)
	ListByDataset(ctx context.Context, datasetID int) ([]Grant, error)
	SetActive(ctx context.Context, id string, active bool) error

	CreateReview(ctx context.Context, rec ReviewRecord) error
	GetReview(ctx context.Context, grantID string, itemID int) (ReviewRecord, error)
	ListReviews(ctx context.Context, grantID string) ([]ReviewRecord, error)
}
