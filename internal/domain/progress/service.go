package progress

import (
	"context"
	"errors"

	"dataset-review/internal/domain/items"
	"dataset-review/internal/domain/selection"

	"github.com/cenkalti/backoff/v4"
)

var ErrInvalidInput = errors.New("invalid input")

// Lecturas idempotentes: reintentos acotados. Las escrituras de contadores
// nunca se reintentan a ciegas (viven en sessions, no acá).
const maxReadRetries = 2

// Reader es la capacidad de lectura de ítems que necesita el agregador.
type Reader interface {
	ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]items.Item, error)
}

// Summary son los conteos por status y marcado sobre un subconjunto.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Modified int `json:"modified"`
	Marked   int `json:"marked"`
}

type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Summarize cuenta cada ítem del subconjunto por status y por marca.
// Materializa la lista en memoria: alcanza para los tamaños que maneja
// este sistema, no está pensado para datasets sin cota.
func (s *Service) Summarize(ctx context.Context, datasetID int, sel selection.Selection) (Summary, error) {
	if datasetID <= 0 || sel.Count() == 0 {
		return Summary{}, ErrInvalidInput
	}

	list, err := s.list(ctx, datasetID, sel)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Total: len(list)}
	for _, it := range list {
		switch it.Status {
		case items.StatusPending:
			out.Pending++
		case items.StatusApproved:
			out.Approved++
		case items.StatusRejected:
			out.Rejected++
		case items.StatusModified:
			out.Modified++
		}
		if it.IsMarked {
			out.Marked++
		}
	}
	return out, nil
}

// ReviewedCount devuelve cuántos ítems del subconjunto ya no están pendientes.
func (s *Service) ReviewedCount(ctx context.Context, datasetID int, sel selection.Selection) (int, error) {
	sum, err := s.Summarize(ctx, datasetID, sel)
	if err != nil {
		return 0, err
	}
	return sum.Total - sum.Pending, nil
}

// Predicate decide si un ítem corta la búsqueda de FirstMatching.
type Predicate func(items.Item) bool

func IsPending(it items.Item) bool { return it.Status == items.StatusPending }
func IsMarked(it items.Item) bool  { return it.IsMarked }

// FirstMatching recorre el subconjunto en orden de posición y devuelve la
// primera posición cuyo ítem cumple el predicado. Barrido lineal a
// propósito: acá importa la exactitud del "siguiente en orden", no el
// throughput, a los tamaños de lista esperados.
func (s *Service) FirstMatching(ctx context.Context, datasetID int, sel selection.Selection, pred Predicate) (int, bool, error) {
	if datasetID <= 0 || sel.Count() == 0 || pred == nil {
		return 0, false, ErrInvalidInput
	}

	list, err := s.list(ctx, datasetID, sel)
	if err != nil {
		return 0, false, err
	}

	for _, it := range list {
		if !pred(it) {
			continue
		}
		pos, ok := sel.Locate(sel.RefOf(it.ID, it.SeqNum))
		if !ok {
			continue
		}
		return pos, true, nil
	}
	return 0, false, nil
}

func (s *Service) list(ctx context.Context, datasetID int, sel selection.Selection) ([]items.Item, error) {
	var out []items.Item
	op := func() error {
		list, err := s.reader.ListBySelection(ctx, datasetID, sel)
		if err != nil {
			return err
		}
		out = list
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxReadRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return out, nil
}
