package ports

import (
	"context"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// Reporter presenta el estado del bot al operador.
type Reporter interface {
	// Report muestra progreso, contadores y actividad reciente.
	// En la implementación de consola, imprime tablas formateadas.
	Report(ctx context.Context, status domain.StatusReport) error
}
