package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/cough"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
)

func (c *Controller) initCoughRoutes() {
	c.Group.POST("/coughs", c.SubmitDeviceCough, c.requireDeviceKey)
	c.Group.POST("/recordings", c.SubmitUserRecording, c.requireSession)
	c.Group.PATCH("/coughs/:id/result", c.UpdateCoughResult, c.requireDeviceKey)
	c.Group.PATCH("/detections/callback", c.DetectionCallback)

	c.Group.GET("/coughs", c.ListCoughs, c.requireSession)
	c.Group.GET("/coughs/:id", c.GetCough, c.requireSession)
	c.Group.POST("/coughs/:id/notes", c.AddCoughNote, c.requireSession)
	c.Group.DELETE("/coughs/:id", c.DeleteCough, c.requireSession, c.requireAdmin)
}

// coughEventJSON augments the stored event with its resolved detection
// result for API responses.
type coughEventJSON struct {
	*datastore.CoughEvent
	DetectionResult *datastore.DetectionResult `json:"detectionResult"`
}

func eventJSON(event *datastore.CoughEvent) coughEventJSON {
	return coughEventJSON{
		CoughEvent:      event,
		DetectionResult: event.DetectionResult(),
	}
}

func eventListJSON(page *cough.Page) map[string]any {
	out := make([]coughEventJSON, 0, len(page.Events))
	for i := range page.Events {
		out = append(out, eventJSON(&page.Events[i]))
	}
	return map[string]any{
		"events": out,
		"total":  page.Total,
		"pages":  page.Pages,
		"page":   page.Page,
	}
}

// SubmitDeviceCough ingests a multipart cough recording from an edge
// device.
func (c *Controller) SubmitDeviceCough(ctx echo.Context) error {
	params, err := c.submitParamsFromForm(ctx)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Invalid cough submission")
	}
	params.DeviceID = ctx.FormValue("deviceId")
	params.SubmitterName = params.DeviceID

	event, err := c.Coughs.Submit(ctx.Request().Context(), *params)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to create cough event")
	}

	if c.metrics != nil {
		c.metrics.RecordSubmission("device")
	}
	return ctx.JSON(http.StatusCreated, eventJSON(event))
}

// SubmitUserRecording ingests a recording uploaded by the signed-in user.
func (c *Controller) SubmitUserRecording(ctx echo.Context) error {
	user := sessionUser(ctx)

	params, err := c.submitParamsFromForm(ctx)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Invalid recording submission")
	}
	params.UserID = user.ID
	params.SubmitterName = user.Name

	event, err := c.Coughs.Submit(ctx.Request().Context(), *params)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to create recording")
	}

	if c.metrics != nil {
		c.metrics.RecordSubmission("user")
	}
	return ctx.JSON(http.StatusCreated, eventJSON(event))
}

func (c *Controller) submitParamsFromForm(ctx echo.Context) (*cough.SubmitParams, error) {
	file, err := ctx.FormFile("audio")
	if err != nil {
		return nil, validationErrorf("audio file is required")
	}
	src, err := file.Open()
	if err != nil {
		return nil, validationErrorf("audio file is unreadable")
	}
	// The reader stays open until Submit has stored the blob; echo cleans
	// up the multipart temp file after the handler returns.
	ctx.Response().After(func() { _ = src.Close() })

	params := &cough.SubmitParams{
		Audio:    src,
		Filename: file.Filename,
	}

	if raw := ctx.FormValue("timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, validationErrorf("timestamp must be RFC3339")
		}
		params.Timestamp = &ts
	}
	if raw := ctx.FormValue("directionOfArrival"); raw != "" {
		doa, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, validationErrorf("directionOfArrival must be a number")
		}
		params.DirectionOfArrival = &doa
	}

	return params, nil
}

// UpdateCoughResult records a classification result pushed by a device.
func (c *Controller) UpdateCoughResult(ctx echo.Context) error {
	var body struct {
		IsTBCough       *bool    `json:"isTBCough"`
		ConfidenceScore *float64 `json:"confidenceScore"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if body.IsTBCough == nil || body.ConfidenceScore == nil {
		return c.HandleError(ctx, nil, "isTBCough and confidenceScore are required", http.StatusBadRequest)
	}

	event, err := c.Coughs.RecordResult(ctx.Request().Context(), ctx.Param("id"), cough.Result{
		IsTBCough:       *body.IsTBCough,
		ConfidenceScore: *body.ConfidenceScore,
	})
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to update detection result")
	}

	c.recordDetectionMetric(event)
	return ctx.JSON(http.StatusOK, eventJSON(event))
}

// DetectionCallback handles the asynchronous classifier callback. The
// payload is validated in full before any event is touched.
func (c *Controller) DetectionCallback(ctx echo.Context) error {
	var body struct {
		RecordID        string   `json:"record_id"`
		Status          *int     `json:"status"`
		ConfidenceScore *float64 `json:"confidence_score"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if body.RecordID == "" {
		return c.HandleError(ctx, nil, "record_id is required", http.StatusBadRequest)
	}
	if body.Status == nil || body.ConfidenceScore == nil {
		return c.HandleError(ctx, nil, "status and confidence_score are required", http.StatusBadRequest)
	}

	event, err := c.Coughs.RecordExternalDetection(ctx.Request().Context(),
		body.RecordID, *body.Status, *body.ConfidenceScore)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to process detection callback")
	}

	c.recordDetectionMetric(event)
	return ctx.JSON(http.StatusOK, eventJSON(event))
}

func (c *Controller) recordDetectionMetric(event *datastore.CoughEvent) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordDetection(event.Status)
}

// ListCoughs returns a filtered, paginated event listing.
func (c *Controller) ListCoughs(ctx echo.Context) error {
	query := cough.Query{
		Status:   ctx.QueryParam("status"),
		DeviceID: ctx.QueryParam("deviceId"),
		UserID:   ctx.QueryParam("userId"),
	}

	if raw := ctx.QueryParam("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return c.HandleError(ctx, nil, "page must be a positive integer", http.StatusBadRequest)
		}
		query.Page = page
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return c.HandleError(ctx, nil, "limit must be a positive integer", http.StatusBadRequest)
		}
		query.Limit = limit
	}
	if raw := ctx.QueryParam("startDate"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.HandleError(ctx, nil, "startDate must be YYYY-MM-DD", http.StatusBadRequest)
		}
		query.Start = &start
	}
	if raw := ctx.QueryParam("endDate"); raw != "" {
		end, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.HandleError(ctx, nil, "endDate must be YYYY-MM-DD", http.StatusBadRequest)
		}
		query.End = &end
	}

	page, err := c.Coughs.List(ctx.Request().Context(), query)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to list cough events")
	}
	return ctx.JSON(http.StatusOK, eventListJSON(page))
}

// GetCough returns a single event with its notes.
func (c *Controller) GetCough(ctx echo.Context) error {
	event, err := c.Coughs.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleDomainError(ctx, err, "Cough event not found")
	}
	return ctx.JSON(http.StatusOK, eventJSON(event))
}

// AddCoughNote attaches a staff note to an event.
func (c *Controller) AddCoughNote(ctx echo.Context) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	event, err := c.Coughs.AddNote(ctx.Request().Context(), ctx.Param("id"), sessionUser(ctx), body.Content)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Failed to add note")
	}
	return ctx.JSON(http.StatusCreated, eventJSON(event))
}

// DeleteCough removes an event and its stored audio.
func (c *Controller) DeleteCough(ctx echo.Context) error {
	if err := c.Coughs.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return c.HandleDomainError(ctx, err, "Failed to delete cough event")
	}
	return ctx.NoContent(http.StatusNoContent)
}
