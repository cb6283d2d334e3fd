package http

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// roomQR renders a PNG QR code linking to the room's join URL.
func (s *Server) roomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		s.log.WithError(err).Error("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
