package http

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/document"
	"github.com/ekisa-team/lector/internal/export"
	"github.com/ekisa-team/lector/internal/narration"
	"github.com/ekisa-team/lector/internal/service"
)

// AudioPathPrefix is the URL prefix cached audio is served under.
const AudioPathPrefix = "/audio/"

type (
	TextRequestDTO struct {
		Text string `json:"text" doc:"Document text; headings (# Title) or blank lines separate parts"`
	}

	SplitResponseDTO struct {
		Parts []string `json:"parts"`
	}

	SynthesizeResponseDTO struct {
		BatchID   string   `json:"batch_id"`
		AudioURLs []string `json:"audio_urls"`
		Failed    []string `json:"failed,omitempty" doc:"URLs whose synthesis already failed"`
	}

	RepeatPartRequestDTO struct {
		Idx  int    `json:"idx" doc:"Zero-based part index"`
		Text string `json:"text"`
	}

	AudioURLResponseDTO struct {
		AudioURL string `json:"audio_url"`
	}

	DeleteAudioRequestDTO struct {
		URL string `json:"url"`
	}

	DeleteAudioResponseDTO struct {
		Deleted bool `json:"deleted"`
	}

	ClearCacheResponseDTO struct {
		Cleared int `json:"cleared"`
	}

	ExportResponseDTO struct {
		ExportURL string   `json:"export_url"`
		Included  int      `json:"included"`
		Skipped   []string `json:"skipped" doc:"Segments missing from the export because they failed or were not ready in time"`
	}

	UploadResponseDTO struct {
		Text string `json:"text"`
	}

	HealthResponseDTO struct {
		Status string `json:"status"`
	}
)

type (
	SplitInput struct {
		Body TextRequestDTO
	}

	SplitOutput struct {
		Body SplitResponseDTO
	}

	SynthesizeInput struct {
		Body TextRequestDTO
	}

	SynthesizeOutput struct {
		Body SynthesizeResponseDTO
	}

	RepeatPartInput struct {
		Body RepeatPartRequestDTO
	}

	RepeatPartOutput struct {
		Body AudioURLResponseDTO
	}

	AudioInput struct {
		Filename string `path:"filename"`
	}

	DeleteAudioInput struct {
		Body DeleteAudioRequestDTO
	}

	DeleteAudioOutput struct {
		Body DeleteAudioResponseDTO
	}

	ClearCacheOutput struct {
		Body ClearCacheResponseDTO
	}

	ExportOutput struct {
		Body ExportResponseDTO
	}

	UploadInput struct {
		RawBody multipart.Form
	}

	UploadOutput struct {
		Body UploadResponseDTO
	}

	HealthOutput struct {
		Body HealthResponseDTO
	}
)

// NarratorHandler handles HTTP requests for narration.
type NarratorHandler struct {
	service *service.Narrator
}

// NewNarratorHandler creates a new NarratorHandler instance and registers its
// operations on api.
func NewNarratorHandler(api huma.API, service *service.Narrator) *NarratorHandler {
	h := &NarratorHandler{service: service}

	huma.Register(api, huma.Operation{
		OperationID:   "split",
		Method:        http.MethodPost,
		Path:          "/split",
		Summary:       "Split text into parts",
		Tags:          []string{"narration"},
		DefaultStatus: http.StatusOK,
	}, h.handleSplit)

	huma.Register(api, huma.Operation{
		OperationID:   "synthesize",
		Method:        http.MethodPost,
		Path:          "/tts",
		Summary:       "Synthesize every part of a text",
		Description:   "The first part is ready when the response is sent; the rest are synthesized in the background.",
		Tags:          []string{"narration"},
		DefaultStatus: http.StatusOK,
	}, h.handleSynthesize)

	huma.Register(api, huma.Operation{
		OperationID:   "repeat-part",
		Method:        http.MethodPost,
		Path:          "/repeat_part",
		Summary:       "Synthesize one part again",
		Tags:          []string{"narration"},
		DefaultStatus: http.StatusOK,
	}, h.handleRepeatPart)

	huma.Register(api, huma.Operation{
		OperationID: "get-audio",
		Method:      http.MethodGet,
		Path:        AudioPathPrefix + "{filename}",
		Summary:     "Stream a cached audio file",
		Tags:        []string{"audio"},
	}, h.handleAudio)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-audio",
		Method:        http.MethodPost,
		Path:          "/delete_audio",
		Summary:       "Delete a cached audio file by URL",
		Tags:          []string{"audio"},
		DefaultStatus: http.StatusOK,
	}, h.handleDeleteAudio)

	huma.Register(api, huma.Operation{
		OperationID:   "clear-cache",
		Method:        http.MethodPost,
		Path:          "/clear_cache",
		Summary:       "Delete every cached audio file",
		Tags:          []string{"audio"},
		DefaultStatus: http.StatusOK,
	}, h.handleClearCache)

	huma.Register(api, huma.Operation{
		OperationID:   "export-all",
		Method:        http.MethodPost,
		Path:          "/export_all",
		Summary:       "Merge the cached parts into one file",
		Tags:          []string{"audio"},
		DefaultStatus: http.StatusOK,
	}, h.handleExportAll)

	huma.Register(api, huma.Operation{
		OperationID:   "upload-pdf",
		Method:        http.MethodPost,
		Path:          "/upload_pdf",
		Summary:       "Extract the text of a PDF",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusOK,
	}, h.handleUploadPDF)

	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Liveness probe",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthResponseDTO{Status: "ok"}}, nil
	})

	return h
}

func audioURL(a cache.Artifact) string {
	return AudioPathPrefix + a.Name()
}

// handleSplit handles the split operation.
func (h *NarratorHandler) handleSplit(ctx context.Context, input *SplitInput) (*SplitOutput, error) {
	parts := h.service.Split(input.Body.Text)
	if parts == nil {
		parts = []string{}
	}
	return &SplitOutput{Body: SplitResponseDTO{Parts: parts}}, nil
}

// handleSynthesize handles the synthesize operation.
func (h *NarratorHandler) handleSynthesize(ctx context.Context, input *SynthesizeInput) (*SynthesizeOutput, error) {
	batch, err := h.service.Synthesize(ctx, input.Body.Text)
	if err != nil {
		return nil, toHumaError(err)
	}

	urls := make([]string, len(batch.Artifacts))
	byID := make(map[string]string, len(batch.Artifacts))
	for i, a := range batch.Artifacts {
		urls[i] = audioURL(a)
		byID[a.ID] = urls[i]
	}

	var failed []string
	for _, id := range batch.Failed() {
		failed = append(failed, byID[id])
	}

	return &SynthesizeOutput{
		Body: SynthesizeResponseDTO{BatchID: batch.ID, AudioURLs: urls, Failed: failed},
	}, nil
}

// handleRepeatPart handles the repeat-part operation.
func (h *NarratorHandler) handleRepeatPart(ctx context.Context, input *RepeatPartInput) (*RepeatPartOutput, error) {
	art, err := h.service.RepeatPart(ctx, input.Body.Idx, input.Body.Text)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &RepeatPartOutput{Body: AudioURLResponseDTO{AudioURL: audioURL(art)}}, nil
}

// handleAudio streams a cached file with range support.
func (h *NarratorHandler) handleAudio(ctx context.Context, input *AudioInput) (*huma.StreamResponse, error) {
	f, art, err := h.service.Open(input.Filename)
	if err != nil {
		return nil, toHumaError(err)
	}

	contentType := "audio/mpeg"
	if art.Kind == cache.KindExport {
		contentType = "audio/wav"
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			defer f.Close()

			r, w := humago.Unwrap(hctx)
			w.Header().Set("Content-Type", contentType)
			if art.Kind == cache.KindExport {
				w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name()))
			}

			modTime := art.CreatedAt
			if st, err := f.Stat(); err == nil {
				modTime = st.ModTime()
			}
			http.ServeContent(w, r, art.Name(), modTime, f)
		},
	}, nil
}

// handleDeleteAudio handles the delete-audio operation. Unknown URLs are
// acknowledged too.
func (h *NarratorHandler) handleDeleteAudio(ctx context.Context, input *DeleteAudioInput) (*DeleteAudioOutput, error) {
	h.service.Delete(input.Body.URL)
	return &DeleteAudioOutput{Body: DeleteAudioResponseDTO{Deleted: true}}, nil
}

// handleClearCache handles the clear-cache operation.
func (h *NarratorHandler) handleClearCache(ctx context.Context, _ *struct{}) (*ClearCacheOutput, error) {
	return &ClearCacheOutput{Body: ClearCacheResponseDTO{Cleared: h.service.Clear()}}, nil
}

// handleExportAll handles the export-all operation.
func (h *NarratorHandler) handleExportAll(ctx context.Context, _ *struct{}) (*ExportOutput, error) {
	res, err := h.service.Export(ctx)
	if err != nil {
		return nil, toHumaError(err)
	}

	skipped := make([]string, len(res.Skipped))
	for i, id := range res.Skipped {
		skipped[i] = AudioPathPrefix + id + cache.KindSegment.Ext()
	}

	return &ExportOutput{
		Body: ExportResponseDTO{
			ExportURL: audioURL(res.Artifact),
			Included:  len(res.Included),
			Skipped:   skipped,
		},
	}, nil
}

// handleUploadPDF handles the upload-pdf operation.
func (h *NarratorHandler) handleUploadPDF(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
	files := input.RawBody.File["file"]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("file is required")
	}
	header := files[0]
	if header.Filename == "" {
		return nil, huma.Error400BadRequest("file name is required")
	}

	f, err := header.Open()
	if err != nil {
		return nil, huma.Error400BadRequest("failed to read upload", err)
	}
	defer f.Close()

	text, err := h.service.ExtractText(header.Filename, f, header.Size)
	if err != nil {
		return nil, toHumaError(err)
	}

	return &UploadOutput{Body: UploadResponseDTO{Text: text}}, nil
}

// toHumaError maps service errors onto HTTP status codes.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, narration.ErrNoSegments):
		return huma.Error400BadRequest("no text segments to synthesize", err)
	case errors.Is(err, service.ErrIndexOutOfRange):
		return huma.Error400BadRequest("part index out of range", err)
	case errors.Is(err, document.ErrUnsupportedFormat), errors.Is(err, document.ErrInvalidDocument):
		return huma.Error400BadRequest("invalid file", err)
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrNotReady):
		return huma.Error404NotFound("audio not found", err)
	case errors.Is(err, export.ErrNoContent):
		return huma.Error422UnprocessableEntity("no audio available to export", err)
	case errors.Is(err, narration.ErrSynthesisFailed):
		return huma.Error502BadGateway("speech synthesis failed", err)
	case errors.Is(err, narration.ErrClosed):
		return huma.Error503ServiceUnavailable("server is shutting down", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request cancelled", err)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
