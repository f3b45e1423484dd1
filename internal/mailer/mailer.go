// Package mailer es el adapter hacia el relay SMTP saliente.
// El dispatcher sólo conoce la interfaz Sender; el protocolo de cable
// queda delegado en go-mail.
package mailer

import "context"

// Attachment referencia un archivo ya guardado en disco.
// Filename es el nombre visible en el mail; Path la ruta local.
type Attachment struct {
	Filename string
	Path     string
}

// Message es un mensaje saliente completamente compuesto.
type Message struct {
	From        string // "Display Name <addr>" ya formateado
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Sender entrega un mensaje o falla. Una implementación debe tratar cada
// llamada como un intento único: el dispatcher no reintenta.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
