package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte, contentType string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL = envOr("BUZONERO_URL", "http://localhost:8080")
		apiKey  = envOr("BUZONERO_KEY", "")
		out     = envOr("BUZONERO_OUT", "text")
		timeout = 10 * time.Minute // un batch grande con pacing tarda
	)

	root := &cobra.Command{
		Use:   "buzonero",
		Short: "CLI para el servicio de envío masivo",
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env BUZONERO_URL)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", apiKey, "API key (env BUZONERO_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: timeout}}

	// ─── send ───
	var (
		sendTo         []string
		sendEmailsFile string
		sendSubject    string
		sendBody       string
		sendBodyFile   string
		sendFromName   string
		sendAttach     []string
	)
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Enviar un batch de correos",
		RunE: func(cmd *cobra.Command, args []string) error {
			emails := strings.Join(sendTo, "\n")
			if sendEmailsFile != "" {
				b, err := os.ReadFile(sendEmailsFile)
				if err != nil {
					return fmt.Errorf("leer %s: %w", sendEmailsFile, err)
				}
				if emails != "" {
					emails += "\n"
				}
				emails += string(b)
			}
			if strings.TrimSpace(emails) == "" {
				return fmt.Errorf("falta --to o --emails-file")
			}

			body := sendBody
			if sendBodyFile != "" {
				b, err := os.ReadFile(sendBodyFile)
				if err != nil {
					return fmt.Errorf("leer %s: %w", sendBodyFile, err)
				}
				body = string(b)
			}

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			_ = mw.WriteField("emails", emails)
			_ = mw.WriteField("subject", sendSubject)
			_ = mw.WriteField("body", body)
			if sendFromName != "" {
				_ = mw.WriteField("from_name", sendFromName)
			}
			for _, p := range sendAttach {
				f, err := os.Open(p)
				if err != nil {
					return fmt.Errorf("abrir adjunto %s: %w", p, err)
				}
				part, err := mw.CreateFormFile("attachments", filepath.Base(p))
				if err == nil {
					_, err = io.Copy(part, f)
				}
				f.Close()
				if err != nil {
					return fmt.Errorf("adjunto %s: %w", p, err)
				}
			}
			if err := mw.Close(); err != nil {
				return err
			}

			status, respBody, err := cl.do("POST", "/v1/send", buf.Bytes(), mw.FormDataContentType())
			if err != nil {
				return err
			}
			cl.print(status, respBody)
			if status/100 != 2 {
				return fmt.Errorf("send fallo: status=%d", status)
			}
			return nil
		},
	}
	sendCmd.Flags().StringArrayVar(&sendTo, "to", nil, "Destinatario (repetible)")
	sendCmd.Flags().StringVar(&sendEmailsFile, "emails-file", "", "Archivo con un destinatario por línea")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "Asunto")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "Cuerpo HTML")
	sendCmd.Flags().StringVar(&sendBodyFile, "body-file", "", "Archivo con el cuerpo HTML (gana sobre --body)")
	sendCmd.Flags().StringVar(&sendFromName, "from-name", "", "Nombre a mostrar del remitente")
	sendCmd.Flags().StringArrayVar(&sendAttach, "attach", nil, "Adjunto (repetible)")
	_ = sendCmd.MarkFlagRequired("subject")

	// ─── log ───
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Ver el log de envíos y aperturas",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/log", nil, "")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("log fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// ─── quota ───
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Ver el estado del cupo diario",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/quota", nil, "")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("quota fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// ─── notes ───
	notesCmd := &cobra.Command{Use: "notes", Short: "Notas/plantillas del servicio"}

	notesListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar notas",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/notes", nil, "")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("notes list fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	var noteTitle, noteBody string
	notesAddCmd := &cobra.Command{
		Use:   "add",
		Short: "Crear una nota",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _ := json.Marshal(map[string]string{"title": noteTitle, "body": noteBody})
			status, body, err := cl.do("POST", "/v1/notes", b, "application/json")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("notes add fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	notesAddCmd.Flags().StringVar(&noteTitle, "title", "", "Título")
	notesAddCmd.Flags().StringVar(&noteBody, "body", "", "Cuerpo")
	_ = notesAddCmd.MarkFlagRequired("title")

	var editTitle, editNewTitle, editBody string
	notesEditCmd := &cobra.Command{
		Use:   "edit",
		Short: "Editar una nota existente",
		RunE: func(cmd *cobra.Command, args []string) error {
			newTitle := editNewTitle
			if newTitle == "" {
				newTitle = editTitle
			}
			b, _ := json.Marshal(map[string]string{"title": newTitle, "body": editBody})
			status, body, err := cl.do("PUT", "/v1/notes/"+url.PathEscape(editTitle), b, "application/json")
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("notes edit fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	notesEditCmd.Flags().StringVar(&editTitle, "title", "", "Título actual")
	notesEditCmd.Flags().StringVar(&editNewTitle, "new-title", "", "Título nuevo (opcional)")
	notesEditCmd.Flags().StringVar(&editBody, "body", "", "Cuerpo nuevo")
	_ = notesEditCmd.MarkFlagRequired("title")

	notesCmd.AddCommand(notesListCmd, notesAddCmd, notesEditCmd)
	root.AddCommand(sendCmd, logCmd, quotaCmd, notesCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
