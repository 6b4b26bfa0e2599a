package server

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/analysis"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/comparison"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/favorites"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/report"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/similarity"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/updater"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingRulingsService   = errors.New("rulings service dependency required")
	errMissingSimilarityIndex  = errors.New("similarity index dependency required")
	errMissingUpdater          = errors.New("updater dependency required")
	errMissingFavoritesService = errors.New("favorites service dependency required")
)

// Options carries the route-level tunables.
type Options struct {
	ItemsPerPage        int
	ExportLimit         int
	SimilarityThreshold float64
	SimilarityLimit     int
}

// Dependencies wires the HTTP handler to the core services.
type Dependencies struct {
	Rulings   *rulings.Service
	Index     *similarity.Index
	Updater   *updater.Updater
	Favorites *favorites.Service
	Options   Options
	Logger    *zap.Logger
}

// NewHTTPHandler builds the gin router over the core services.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Rulings == nil {
		return nil, errMissingRulingsService
	}
	if deps.Index == nil {
		return nil, errMissingSimilarityIndex
	}
	if deps.Updater == nil {
		return nil, errMissingUpdater
	}
	if deps.Favorites == nil {
		return nil, errMissingFavoritesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	options := deps.Options
	if options.ItemsPerPage < 1 {
		options.ItemsPerPage = 25
	}
	if options.SimilarityLimit < 1 {
		options.SimilarityLimit = similarity.DefaultLimit
	}
	if options.SimilarityThreshold <= 0 {
		options.SimilarityThreshold = similarity.DefaultThreshold
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		rulings:   deps.Rulings,
		index:     deps.Index,
		updater:   deps.Updater,
		favorites: deps.Favorites,
		options:   options,
		logger:    logger,
	}

	api := router.Group("/api")
	api.GET("/sentencias", handler.handleListRulings)
	api.GET("/sentencias/:id", handler.handleRulingDetail)
	api.GET("/sentencias/:id/similares", handler.handleSimilarRulings)
	api.POST("/comparar", handler.handleCompare)
	api.POST("/actualizar", handler.handleManualUpdate)
	api.GET("/estadisticas", handler.handleStats)
	api.GET("/exportar/:formato", handler.handleExport)
	api.GET("/reporte/sentencia/:id", handler.handleRulingReport)
	api.GET("/favoritos", handler.handleListFavorites)
	api.POST("/favoritos", handler.handleAddFavorite)
	api.DELETE("/favoritos", handler.handleRemoveFavorite)
	api.PUT("/favoritos/:id/notas", handler.handleUpdateFavoriteNotes)
	api.GET("/favoritos/check/:id", handler.handleCheckFavorite)
	api.POST("/analisis/entidades", handler.handleEntities)
	api.GET("/health", handler.handleHealth)

	return router, nil
}

type httpHandler struct {
	rulings   *rulings.Service
	index     *similarity.Index
	updater   *updater.Updater
	favorites *favorites.Service
	options   Options
	logger    *zap.Logger
}

type rulingPayload struct {
	ID              int64    `json:"id"`
	RulingNumber    string   `json:"numero_sentencia"`
	PublicationDate string   `json:"fecha_publicacion"`
	Plaintiff       string   `json:"nombre_demandante"`
	Defendant       string   `json:"nombre_demandado"`
	CaseFileNumber  string   `json:"numero_expediente"`
	Grounds         []string `json:"fundamentos"`
	FileURL         string   `json:"url_archivo"`
	Keywords        string   `json:"palabras_clave"`
	Summary         string   `json:"resumen"`
	FetchedAt       string   `json:"fecha_scraping"`
}

func toRulingPayload(r rulings.Ruling) rulingPayload {
	return rulingPayload{
		ID:              r.ID,
		RulingNumber:    r.RulingNumber,
		PublicationDate: r.PublicationDate,
		Plaintiff:       r.Plaintiff,
		Defendant:       r.Defendant,
		CaseFileNumber:  r.CaseFileNumber,
		Grounds:         r.GroundsList(),
		FileURL:         r.FileURL,
		Keywords:        r.Keywords,
		Summary:         r.Summary,
		FetchedAt:       r.FetchedAt.UTC().Format(time.RFC3339),
	}
}

func (h *httpHandler) handleListRulings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(h.options.ItemsPerPage)))

	result, err := h.rulings.Search(c.Request.Context(), rulings.SearchParams{
		Term:     c.Query("search"),
		DateFrom: c.Query("fecha_desde"),
		DateTo:   c.Query("fecha_hasta"),
		OrderBy:  c.DefaultQuery("ordenar", "fecha_publicacion DESC"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.logger.Error("ruling search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed"})
		return
	}

	payloads := make([]rulingPayload, 0, len(result.Rulings))
	for _, ruling := range result.Rulings {
		payloads = append(payloads, toRulingPayload(ruling))
	}
	pages := int64(0)
	if result.PerPage > 0 {
		pages = (result.Total + int64(result.PerPage) - 1) / int64(result.PerPage)
	}
	c.JSON(http.StatusOK, gin.H{
		"sentencias": payloads,
		"total":      result.Total,
		"page":       result.Page,
		"per_page":   result.PerPage,
		"pages":      pages,
	})
}

func (h *httpHandler) handleRulingDetail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}

	ruling, err := h.rulings.Get(c.Request.Context(), id)
	if errors.Is(err, rulings.ErrRulingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sentencia_no_encontrada"})
		return
	}
	if err != nil {
		h.logger.Error("ruling lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, toRulingPayload(ruling))
}

type similarRulingPayload struct {
	rulingPayload
	SimilarityScore float64 `json:"similarity_score"`
}

func (h *httpHandler) handleSimilarRulings(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}

	matches, err := h.index.FindSimilar(c.Request.Context(), id,
		h.options.SimilarityThreshold, h.options.SimilarityLimit)
	if err != nil {
		h.logger.Error("similarity query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "similarity_failed"})
		return
	}
	if len(matches) == 0 {
		c.JSON(http.StatusOK, []similarRulingPayload{})
		return
	}

	ids := make([]int64, 0, len(matches))
	scores := make(map[int64]float64, len(matches))
	for _, match := range matches {
		ids = append(ids, match.ID)
		scores[match.ID] = match.Score
	}
	hydrated, err := h.rulings.GetMany(c.Request.Context(), ids)
	if err != nil {
		h.logger.Error("similar ruling hydration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	byID := make(map[int64]rulings.Ruling, len(hydrated))
	for _, ruling := range hydrated {
		byID[ruling.ID] = ruling
	}
	payloads := make([]similarRulingPayload, 0, len(matches))
	for _, match := range matches {
		ruling, ok := byID[match.ID]
		if !ok {
			continue
		}
		payloads = append(payloads, similarRulingPayload{
			rulingPayload:   toRulingPayload(ruling),
			SimilarityScore: scores[match.ID],
		})
	}
	c.JSON(http.StatusOK, payloads)
}

type compareRequestPayload struct {
	IDs    []int64 `json:"ids"`
	Format string  `json:"format"`
}

func (h *httpHandler) handleCompare(c *gin.Context) {
	var request compareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "se_requieren_dos_ids"})
		return
	}

	pair := make([]rulings.Ruling, 0, 2)
	for _, id := range request.IDs {
		ruling, err := h.rulings.Get(c.Request.Context(), id)
		if errors.Is(err, rulings.ErrRulingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sentencia_no_encontrada"})
			return
		}
		if err != nil {
			h.logger.Error("ruling lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
			return
		}
		pair = append(pair, ruling)
	}

	result := comparison.Compare(pair[0], pair[1])

	if strings.EqualFold(request.Format, "pdf") {
		document, err := report.ComparisonReport(pair[0], pair[1], result.ContentSimilarity)
		if err != nil {
			h.logger.Error("comparison report failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "report_failed"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=comparacion_sentencias.pdf")
		c.Data(http.StatusOK, "application/pdf", document)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleManualUpdate(c *gin.Context) {
	inserted, err := h.updater.TriggerManual(c.Request.Context())
	if errors.Is(err, updater.ErrUpdateInProgress) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "actualizacion_en_curso"})
		return
	}
	if err != nil {
		h.logger.Error("manual update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "actualizacion_fallida"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"nuevas_sentencias": inserted,
		"mensaje":           fmt.Sprintf("Se agregaron %d nuevas sentencias", inserted),
	})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	stats, err := h.rulings.ComputeStats(c.Request.Context())
	if err != nil {
		h.logger.Error("statistics query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estadisticas_fallidas"})
		return
	}
	state := "pausado"
	if h.updater.Running() {
		state = "activo"
	}
	c.JSON(http.StatusOK, gin.H{
		"total_sentencias":     stats.TotalRulings,
		"sentencias_por_fecha": stats.RulingsByDate,
		"sentencias_por_mes":   stats.RulingsByMonth,
		"top_palabras":         stats.TopKeywords,
		"busquedas_frecuentes": stats.FrequentSearches,
		"ultima_actualizacion": stats.LastRun,
		"estado_sistema":       state,
	})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	format := strings.ToLower(c.Param("formato"))
	if format != "csv" && format != "json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "formato_no_soportado"})
		return
	}

	matches, err := h.rulings.Export(c.Request.Context(), c.Query("search"), h.options.ExportLimit)
	if err != nil {
		h.logger.Error("export query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "exportacion_fallida"})
		return
	}

	filename := fmt.Sprintf("sentencias_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", "attachment; filename="+filename)

	if format == "json" {
		payloads := make([]rulingPayload, 0, len(matches))
		for _, ruling := range matches {
			payloads = append(payloads, toRulingPayload(ruling))
		}
		c.JSON(http.StatusOK, payloads)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "Número Sentencia", "Fecha", "Demandante",
		"Demandado", "Expediente", "URL", "Palabras Clave", "Resumen"})
	for _, ruling := range matches {
		_ = writer.Write([]string{
			strconv.FormatInt(ruling.ID, 10),
			ruling.RulingNumber,
			ruling.PublicationDate,
			ruling.Plaintiff,
			ruling.Defendant,
			ruling.CaseFileNumber,
			ruling.FileURL,
			ruling.Keywords,
			ruling.Summary,
		})
	}
	writer.Flush()
}

func (h *httpHandler) handleRulingReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}

	ruling, err := h.rulings.Get(c.Request.Context(), id)
	if errors.Is(err, rulings.ErrRulingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sentencia_no_encontrada"})
		return
	}
	if err != nil {
		h.logger.Error("ruling lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	document, err := report.RulingReport(ruling)
	if err != nil {
		h.logger.Error("ruling report failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report_failed"})
		return
	}
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=sentencia_%s.pdf", analysis.Slug(ruling.RulingNumber)))
	c.Data(http.StatusOK, "application/pdf", document)
}

func (h *httpHandler) handleListFavorites(c *gin.Context) {
	entries, err := h.favorites.List(c.Request.Context())
	if err != nil {
		h.logger.Error("favorites listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favoritos_fallidos"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type addFavoritePayload struct {
	RulingID int64  `json:"sentencia_id"`
	Notes    string `json:"notas"`
	Tags     string `json:"etiquetas"`
}

func (h *httpHandler) handleAddFavorite(c *gin.Context) {
	var request addFavoritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.RulingID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sentencia_id_requerido"})
		return
	}

	err := h.favorites.Add(c.Request.Context(), request.RulingID, request.Notes, request.Tags)
	if errors.Is(err, favorites.ErrAlreadyFavorite) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ya_esta_en_favoritos"})
		return
	}
	if err != nil {
		h.logger.Error("favorite insert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favorito_fallido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Agregado a favoritos"})
}

func (h *httpHandler) handleRemoveFavorite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("sentencia_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sentencia_id_requerido"})
		return
	}

	err = h.favorites.Remove(c.Request.Context(), id)
	if errors.Is(err, favorites.ErrNotFavorite) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_esta_en_favoritos"})
		return
	}
	if err != nil {
		h.logger.Error("favorite removal failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favorito_fallido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Eliminado de favoritos"})
}

type updateNotesPayload struct {
	Notes string `json:"notas"`
}

func (h *httpHandler) handleUpdateFavoriteNotes(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}
	var request updateNotesPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = h.favorites.UpdateNotes(c.Request.Context(), id, request.Notes)
	if errors.Is(err, favorites.ErrNotFavorite) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_esta_en_favoritos"})
		return
	}
	if err != nil {
		h.logger.Error("favorite notes update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favorito_fallido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notas actualizadas"})
}

func (h *httpHandler) handleCheckFavorite(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}
	bookmarked, err := h.favorites.IsFavorite(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("favorite check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favorito_fallido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_favorite": bookmarked})
}

type entitiesRequestPayload struct {
	Text string `json:"texto"`
}

func (h *httpHandler) handleEntities(c *gin.Context) {
	var request entitiesRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "texto_requerido"})
		return
	}
	c.JSON(http.StatusOK, analysis.ExtractEntities(request.Text))
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	total, err := h.rulings.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": "database_unreachable"})
		return
	}

	state := "stopped"
	if h.updater.Running() {
		state = "running"
	}
	payload := gin.H{
		"status":        "healthy",
		"database":      "connected",
		"total_records": total,
		"update_thread": state,
		"version":       "2.0.0",
	}
	if lastUpdate := h.updater.LastUpdate(); !lastUpdate.IsZero() {
		payload["last_update"] = lastUpdate.Format(time.RFC3339)
	} else {
		payload["last_update"] = nil
	}
	c.JSON(http.StatusOK, payload)
}
