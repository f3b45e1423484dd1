// Package tracking genera y resuelve los identificadores de apertura.
// Cada mensaje saliente lleva un pixel 1×1 oculto cuyo GET de vuelta
// correlaciona la apertura con su registro del sent log.
package tracking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/buzonero/internal/store"
)

// tagRE elimina secuencias <...> para el fallback de texto plano.
// Aproximación deliberada, NO un parser HTML: markup anidado o malformado
// puede filtrar contenido literal entre ángulos. Comportamiento heredado
// a propósito; no "mejorar" sin cambiar el contrato observable.
var tagRE = regexp.MustCompile(`<[^>]+>`)

// PixelGIF es un GIF transparente de 1×1. Se responde SIEMPRE, resuelva o no
// el id, para no dejar imágenes rotas en el cliente de correo.
var PixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x01, 0x4c, 0x00, 0x3b,
}

// Correlator liga ids de tracking con registros del DeliveryLog.
type Correlator struct {
	// BaseURL pública del servicio (sin slash final), ej "https://mail.example.com".
	BaseURL string
	Log     store.DeliveryLog
}

// NewID retorna un id opaco nuevo (UUIDv4: 122 bits aleatorios, la colisión
// es despreciable durante la vida del store).
func (c *Correlator) NewID() string {
	return uuid.NewString()
}

// PixelURL arma la URL absoluta del pixel para un id.
func (c *Correlator) PixelURL(id string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/track/" + id
}

// Embed agrega el pixel oculto al final del HTML provisto, sin tocar el
// markup original.
func (c *Correlator) Embed(html, id string) string {
	return html + fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none"/>`, c.PixelURL(id))
}

// StripTags deriva el fallback de texto plano removiendo secuencias <...>.
func StripTags(html string) string {
	return tagRE.ReplaceAllString(html, "")
}

// Resolve busca el registro del id y lo marca abierto la primera vez.
// Retorna el registro (si existe) y si esta resolución fue la que lo marcó.
// No encontrar el id no es un error del endpoint: el pixel se sirve igual.
func (c *Correlator) Resolve(ctx context.Context, id string, now time.Time) (store.DeliveryRecord, bool, error) {
	first, err := c.Log.MarkOpened(ctx, id, now)
	if err != nil {
		return store.DeliveryRecord{}, false, err
	}
	rec, err := c.Log.FindByTrackingID(ctx, id)
	if err != nil {
		return store.DeliveryRecord{}, false, err
	}
	return rec, first, nil
}
