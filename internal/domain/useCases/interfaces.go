package useCases

import (
	"net/http"

	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// SnapshotSource produces the latest market snapshot in a display currency
// and tracks which currency is currently selected.
type SnapshotSource interface {
	Snapshot(display model.CurrencyCode) *model.Snapshot
	DisplayCurrency() model.CurrencyCode
}

// Broadcaster defines an interface for pushing snapshots to WebSocket/API layers.
type Broadcaster interface {
	BroadcastSnapshot(snap *model.Snapshot)
	Handler() func(http.ResponseWriter, *http.Request)
}
