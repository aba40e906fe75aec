package api

import (
	"net/http"

	"waba-gateway/internal/dispatch"
	"waba-gateway/internal/taskqueue"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	Dispatcher *dispatch.Dispatcher
	Bulk       *dispatch.BulkOrchestrator
	Queue      *taskqueue.Queue
}

func NewMessageHandler(dispatcher *dispatch.Dispatcher, bulk *dispatch.BulkOrchestrator, queue *taskqueue.Queue) *MessageHandler {
	return &MessageHandler{Dispatcher: dispatcher, Bulk: bulk, Queue: queue}
}

type SendTextRequest struct {
	BusinessID       string `json:"business_id" binding:"required"`
	To               string `json:"to" binding:"required"`
	Body             string `json:"body" binding:"required"`
	PreviewURL       bool   `json:"preview_url"`
	ReplyToMessageID string `json:"reply_to_message_id"`
	Async            bool   `json:"async"`
}

func (h *MessageHandler) SendText(c *gin.Context) {
	var req SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := dispatch.Payload{Text: &dispatch.TextPayload{
		Body:             req.Body,
		PreviewURL:       req.PreviewURL,
		ReplyToMessageID: req.ReplyToMessageID,
	}}

	h.dispatchOrEnqueue(c, req.BusinessID, req.To, payload, req.Async)
}

type SendTemplateRequest struct {
	BusinessID   string                       `json:"business_id" binding:"required"`
	To           string                       `json:"to" binding:"required"`
	TemplateName string                       `json:"template_name" binding:"required"`
	LanguageCode string                       `json:"language_code" binding:"required"`
	Components   []dispatch.TemplateComponent `json:"components"`
	Async        bool                         `json:"async"`
}

func (h *MessageHandler) SendTemplate(c *gin.Context) {
	var req SendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := dispatch.Payload{Template: &dispatch.TemplatePayload{
		Name:         req.TemplateName,
		LanguageCode: req.LanguageCode,
		Components:   req.Components,
	}}

	h.dispatchOrEnqueue(c, req.BusinessID, req.To, payload, req.Async)
}

type SendMediaRequest struct {
	BusinessID string             `json:"business_id" binding:"required"`
	To         string             `json:"to" binding:"required"`
	Kind       dispatch.MediaKind `json:"kind" binding:"required"`
	Link       string             `json:"link"`
	MediaID    string             `json:"media_id"`
	Caption    string             `json:"caption"`
	Filename   string             `json:"filename"`
	Async      bool               `json:"async"`
}

func (h *MessageHandler) SendMedia(c *gin.Context) {
	var req SendMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := dispatch.Payload{Media: &dispatch.MediaPayload{
		Kind:     req.Kind,
		Link:     req.Link,
		MediaID:  req.MediaID,
		Caption:  req.Caption,
		Filename: req.Filename,
	}}

	h.dispatchOrEnqueue(c, req.BusinessID, req.To, payload, req.Async)
}

// dispatchOrEnqueue sends inline, or defers through the task queue when the
// caller wants the send to survive a restart. Note a failed inline dispatch
// is still a 200: the record's status carries the outcome.
func (h *MessageHandler) dispatchOrEnqueue(c *gin.Context, businessID, to string, payload dispatch.Payload, async bool) {
	if async {
		task, err := h.Queue.Enqueue(c.Request.Context(), dispatch.TaskTypeSendMessage, dispatch.SendMessageParams{
			BusinessID: businessID,
			To:         to,
			Payload:    payload,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status})
		return
	}

	record, err := h.Dispatcher.Send(c.Request.Context(), businessID, to, payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type SendBulkRequest struct {
	BusinessID string           `json:"business_id" binding:"required"`
	Recipients []string         `json:"recipients" binding:"required"`
	Payload    dispatch.Payload `json:"payload"`
}

func (h *MessageHandler) SendBulk(c *gin.Context) {
	var req SendBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Bulk.SendBulk(c.Request.Context(), req.BusinessID, req.Recipients, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *MessageHandler) GetTask(c *gin.Context) {
	task, err := h.Queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}
