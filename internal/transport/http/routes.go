package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "transcription-service/docs"
)

func Routes(h *Handler, owners OwnerResolver, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// after RequestID
	r.Use(RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/videos", func(r chi.Router) {
		r.Use(Authenticate(owners))

		r.Post("/upload", h.UploadVideo)
		r.Get("/", h.ListVideos)
		r.Get("/{id}", h.GetVideo)
		r.Delete("/{id}", h.DeleteVideo)
		r.Get("/{id}/transcript/download", h.DownloadTranscript)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
