package selection

import "errors"

var (
	ErrOutOfRange       = errors.New("position out of range")
	ErrInvalidSelection = errors.New("invalid selection")
)

// Kind distingue la forma de la selección.
type Kind string

const (
	KindRange Kind = "range"
	KindIDSet Kind = "ids"
)

// ItemRef identifica un ítem concreto dentro de un dataset.
// Una selección por rango referencia por Seq (posición lógica en el dataset);
// una selección por ids referencia por ID.
type ItemRef struct {
	Kind Kind
	Seq  int
	ID   int
}

// Selection es la variante etiquetada rango | id-set.
// Se construye solo vía NewRange / NewIDSet / FromStored para garantizar
// que las invariantes (rango válido, ids no vacíos) se validen una sola vez.
type Selection struct {
	kind  Kind
	start int
	end   int
	ids   []int
	pos   map[int]int // id -> posición 1-based; se construye una sola vez
}

// NewRange crea una selección contigua de posiciones lógicas [start, end].
func NewRange(start, end int) (Selection, error) {
	if start < 1 || end < start {
		return Selection{}, ErrInvalidSelection
	}
	return Selection{kind: KindRange, start: start, end: end}, nil
}

// NewIDSet crea una selección por ids explícitos, en orden de creación.
// Los duplicados se descartan conservando la primera aparición.
func NewIDSet(ids []int) (Selection, error) {
	if len(ids) == 0 {
		return Selection{}, ErrInvalidSelection
	}
	pos := make(map[int]int, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return Selection{}, ErrInvalidSelection
		}
		if _, dup := pos[id]; dup {
			continue
		}
		out = append(out, id)
		pos[id] = len(out)
	}
	return Selection{kind: KindIDSet, ids: out, pos: pos}, nil
}

// FromStored rearma una Selection desde su forma persistida
// (item_start/item_end/item_ids). Si hay ids, priman sobre el rango.
func FromStored(start, end int, ids []int) (Selection, error) {
	if len(ids) > 0 {
		return NewIDSet(ids)
	}
	return NewRange(start, end)
}

func (s Selection) Kind() Kind { return s.kind }

// Count devuelve la cantidad de posiciones lógicas de la selección.
func (s Selection) Count() int {
	switch s.kind {
	case KindRange:
		return s.end - s.start + 1
	case KindIDSet:
		return len(s.ids)
	}
	return 0
}

// Resolve mapea una posición lógica 1..Count() a un ItemRef.
// Posición 0 o más allá del conteo es ErrOutOfRange, nunca se recorta.
func (s Selection) Resolve(position int) (ItemRef, error) {
	if position < 1 || position > s.Count() {
		return ItemRef{}, ErrOutOfRange
	}
	switch s.kind {
	case KindRange:
		return ItemRef{Kind: KindRange, Seq: s.start + position - 1}, nil
	case KindIDSet:
		return ItemRef{Kind: KindIDSet, ID: s.ids[position-1]}, nil
	}
	return ItemRef{}, ErrInvalidSelection
}

// Locate es la inversa de Resolve: posición 1-based del ref, o false si
// el ref no pertenece a la selección.
func (s Selection) Locate(ref ItemRef) (int, bool) {
	switch s.kind {
	case KindRange:
		if ref.Seq < s.start || ref.Seq > s.end {
			return 0, false
		}
		return ref.Seq - s.start + 1, true
	case KindIDSet:
		p, ok := s.pos[ref.ID]
		return p, ok
	}
	return 0, false
}

// Contains indica si el ref cae dentro de la selección.
func (s Selection) Contains(ref ItemRef) bool {
	_, ok := s.Locate(ref)
	return ok
}

// RefOf construye el ItemRef apropiado para la forma de esta selección,
// dados el id y el seq de un ítem. Permite que los llamadores trabajen
// con ítems sin ramificar por tipo de selección.
func (s Selection) RefOf(id, seq int) ItemRef {
	if s.kind == KindIDSet {
		return ItemRef{Kind: KindIDSet, ID: id}
	}
	return ItemRef{Kind: KindRange, Seq: seq}
}

// Range devuelve los límites si la selección es por rango.
func (s Selection) Range() (start, end int, ok bool) {
	if s.kind != KindRange {
		return 0, 0, false
	}
	return s.start, s.end, true
}

// IDs devuelve una copia de los ids si la selección es por id-set.
func (s Selection) IDs() []int {
	if s.kind != KindIDSet {
		return nil
	}
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}
